// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package recall

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage"
)

// rrfConstant mirrors memory.VectorEngine.HybridSearch's own reciprocal-rank-
// fusion smoothing constant. MemoryOps.HybridSearch returns only []Record
// (spec §4.2's `hybridSearch(...) → memory[]`), not its internal fused
// score, so re-scoring approximates that score from the rank HybridSearch
// already sorted its hits into.
const rrfConstant = 60.0

var allTiers = []memory.Tier{
	memory.TierWorking,
	memory.TierEpisodic,
	memory.TierSemantic,
	memory.TierProcedural,
}

// tierWeight maps a memory tier to the configured hybrid weight that
// governs how strongly its recency (temporal) vs. stability (procedural)
// character should scale its fused score. Working/episodic memories are
// recency-driven; procedural memories are weighted by the procedural
// knob; semantic memories — durable facts — are left at their engine
// score unscaled. This tier→weight mapping is a design decision recorded
// in the grounding ledger, not something the spec pins down explicitly.
func tierWeight(w config.HybridWeights, tier memory.Tier) float64 {
	switch tier {
	case memory.TierWorking, memory.TierEpisodic:
		return w.Temporal
	case memory.TierProcedural:
		return w.Procedural
	default:
		return 1.0
	}
}

// cacheEntry is one memoized recall result.
type cacheEntry struct {
	results []Result
	expires time.Time
}

// Service implements RecallService. It fans a Request out across the
// requested memory tiers in parallel, merges and re-scores the results,
// and optionally expands the top results through the connection graph.
type Service struct {
	ops memory.Ops
	vec memory.VectorOps // nil unless ops is also vector-capable
	cfg config.RecallConfig

	cacheMu sync.Mutex
	cache   map[string]cacheEntry

	// flight collapses concurrent identical queries (same cache key) into
	// a single fan-out, so a cache stampede only pays the tier-query cost
	// once.
	flight singleflight.Group
}

// NewService builds a Service over ops (and, if it also implements
// memory.VectorOps, hybrid search). cfg supplies default weights, limit,
// and cache TTL (spec §6 configuration surface).
func NewService(ops memory.Ops, cfg config.RecallConfig) *Service {
	cfg.SetDefaults()
	s := &Service{ops: ops, cfg: cfg}
	if vec, ok := ops.(memory.VectorOps); ok {
		s.vec = vec
	}
	if cfg.CacheTTLSeconds > 0 {
		s.cache = make(map[string]cacheEntry)
	}
	return s
}

func cacheKey(req Request) string {
	return fmt.Sprintf("%s|%s|%s|%v|%d|%f|%v|%v|%v",
		req.UserID, req.AgentID, req.Query, req.Tiers,
		req.Limit, req.MinRelevance, req.After, req.Before, req.IncludeRelated)
}

// Recall runs req across its requested tiers (or all four), merges and
// re-scores the results, filters by MinRelevance, and truncates to
// Limit. When req.IncludeRelated is set, each surviving result is
// expanded via MemoryOps.FindConnected up to the configured depth.
func (s *Service) Recall(ctx context.Context, req Request) ([]Result, error) {
	if req.Limit <= 0 {
		req.Limit = s.cfg.Limit
	}

	key := cacheKey(req)

	if s.cache != nil {
		s.cacheMu.Lock()
		entry, ok := s.cache[key]
		s.cacheMu.Unlock()
		if ok && time.Now().Before(entry.expires) {
			return entry.results, nil
		}
	}

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		results, err := s.fanOut(ctx, req)
		if err != nil {
			return nil, err
		}

		if s.cache != nil {
			s.cacheMu.Lock()
			s.cache[key] = cacheEntry{
				results: results,
				expires: time.Now().Add(time.Duration(s.cfg.CacheTTLSeconds) * time.Second),
			}
			s.cacheMu.Unlock()
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Result), nil
}

// fanOut runs req across its tiers in parallel, merges, re-scores,
// filters, and optionally expands through the connection graph.
func (s *Service) fanOut(ctx context.Context, req Request) ([]Result, error) {
	tiers := tiersFor(req.Tiers)

	perTier := make([][]tierHit, len(tiers))
	group, gctx := errgroup.WithContext(ctx)
	for i, tier := range tiers {
		i, tier := i, tier
		group.Go(func() error {
			hits, err := s.recallTier(gctx, req, tier)
			if err != nil {
				return err
			}
			perTier[i] = hits
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := mergeByID(perTier)
	results := s.score(merged, req)

	results = filterByRelevance(results, req.MinRelevance)
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	if req.IncludeRelated {
		if err := s.attachRelated(ctx, req.UserID, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func tiersFor(requested []string) []memory.Tier {
	if len(requested) == 0 {
		return allTiers
	}
	out := make([]memory.Tier, len(requested))
	for i, t := range requested {
		out[i] = memory.Tier(t)
	}
	return out
}

// tierHit is one record surviving a single tier's query, tagged with
// whether it came from the hybrid-search path and its rank within that
// tier's result list — the only signal of match quality recallTier has
// left to carry forward once MemoryOps.HybridSearch has collapsed its
// internal fused score down to a plain []Record.
type tierHit struct {
	rec    memory.Record
	tier   memory.Tier
	hybrid bool
	rank   int
}

func (s *Service) recallTier(ctx context.Context, req Request, tier memory.Tier) ([]tierHit, error) {
	filter := memory.RecallFilter{
		Tiers: []memory.Tier{tier},
		After: req.After,
		Before: req.Before,
		Limit: req.Limit,
	}

	if s.vec != nil && len(req.Embedding) > 0 {
		opts := memory.HybridOptions{
			Limit:        req.Limit,
			VectorWeight: s.cfg.HybridWeights.Vector,
			TextWeight:   s.cfg.HybridWeights.Text,
		}
		recs, err := s.vec.HybridSearch(ctx, req.UserID, req.AgentID, req.Query, req.Embedding, opts)
		if err != nil {
			return nil, err
		}
		hits := make([]tierHit, 0, len(recs))
		for i, r := range recs {
			if r.Tier != tier {
				continue
			}
			hits = append(hits, tierHit{rec: r, tier: tier, hybrid: true, rank: i})
		}
		return hits, nil
	}

	recs, err := s.ops.Recall(ctx, req.UserID, req.AgentID, req.Query, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]tierHit, len(recs))
	for i, r := range recs {
		hits[i] = tierHit{rec: r, tier: tier, rank: i}
	}
	return hits, nil
}

func mergeByID(perTier [][]tierHit) map[string]tierHit {
	merged := make(map[string]tierHit)
	for _, hits := range perTier {
		for _, h := range hits {
			if _, exists := merged[h.rec.ID]; !exists {
				merged[h.rec.ID] = h
			}
		}
	}
	return merged
}

// recencyScore mirrors memory.Engine.Recall's own composite-score recency
// term (spec §4.2: `0.5 * (1 / (1 + ageDaysSinceLastAccess))`).
func recencyScore(rec memory.Record, now time.Time) float64 {
	ageDays := now.Sub(rec.LastAccessedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays)
}

func (s *Service) score(merged map[string]tierHit, req Request) []Result {
	now := storage.Now()
	results := make([]Result, 0, len(merged))
	for _, hit := range merged {
		rec := hit.rec
		base := 0.3*rec.Importance + 0.2*rec.Resonance + 0.5*recencyScore(rec, now)

		var fused float64
		if hit.hybrid {
			// The record's match quality already decided its rank within
			// HybridSearch's own RRF fusion; re-derive a comparable
			// contribution from that rank using the same weights the
			// caller asked HybridSearch to fuse with.
			w := (s.cfg.HybridWeights.Vector + s.cfg.HybridWeights.Text) / 2
			fused = base + w/(rrfConstant+float64(hit.rank+1))
		} else {
			fused = base * tierWeight(s.cfg.HybridWeights, hit.tier)
		}

		results = append(results, Result{
			ID:      rec.ID,
			Content: rec.Content,
			Tier:    string(rec.Tier),
			Score:   fused,
		})
	}
	return results
}

func filterByRelevance(results []Result, minRelevance float64) []Result {
	if minRelevance <= 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Score >= minRelevance {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) attachRelated(ctx context.Context, userID string, results []Result) error {
	for i := range results {
		cr, err := s.ops.FindConnected(ctx, userID, results[i].ID, s.cfg.MaxRelatedDepth, 0)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(cr.Memories))
		for _, m := range cr.Memories {
			if m.ID != results[i].ID {
				ids = append(ids, m.ID)
			}
		}
		results[i].RelatedIDs = ids
	}
	return nil
}
