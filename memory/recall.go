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

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/agentdock/agentdock-core/storage"
)

// recallWeights are the fixed composite-score weights for pure-text recall
// (spec §4.2 "Recall scoring"): importance, resonance and access recency.
const (
	weightImportance = 0.3
	weightResonance  = 0.2
	weightRecency    = 0.5
)

func matchesFilter(rec Record, filter RecallFilter) bool {
	if len(filter.Tiers) > 0 {
		found := false
		for _, t := range filter.Tiers {
			if rec.Tier == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.MinImportance != nil && rec.Importance < *filter.MinImportance {
		return false
	}
	if filter.MinResonance != nil && rec.Resonance < *filter.MinResonance {
		return false
	}
	if !filter.After.IsZero() && rec.CreatedAt.Before(filter.After) {
		return false
	}
	if !filter.Before.IsZero() && rec.CreatedAt.After(filter.Before) {
		return false
	}
	if filter.SessionID != "" && rec.SessionID != filter.SessionID {
		return false
	}
	if len(filter.Keywords) > 0 {
		found := false
		for _, kw := range filter.Keywords {
			for _, rk := range rec.Keywords {
				if strings.EqualFold(kw, rk) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// textMatches reports whether query appears in content or keywords. An
// empty query matches everything, turning Recall into a pure filter scan.
func textMatches(rec Record, query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(rec.Content), q) {
		return true
	}
	for _, kw := range rec.Keywords {
		if strings.Contains(strings.ToLower(kw), q) {
			return true
		}
	}
	return false
}

func recencyScore(rec Record, now time.Time) float64 {
	ageDays := now.Sub(rec.LastAccessedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays)
}

func compositeScore(rec Record, now time.Time) float64 {
	return weightImportance*rec.Importance +
		weightResonance*rec.Resonance +
		weightRecency*recencyScore(rec, now)
}

// Recall runs a pure-text, filter-and-score query (spec §4.2 "Recall"):
// matching records are ranked by the composite score, ties broken by
// newer CreatedAt, then truncated to filter.Limit.
func (e *Engine) Recall(ctx context.Context, userID, agentID, query string, filter RecallFilter) ([]Record, error) {
	recs, err := e.listUserMemories(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}

	var matched []Record
	for _, r := range recs {
		if matchesFilter(r, filter) && textMatches(r, query) {
			matched = append(matched, r)
		}
	}

	now := storage.Now()
	sort.Slice(matched, func(i, j int) bool {
		si, sj := compositeScore(matched[i], now), compositeScore(matched[j], now)
		if si != sj {
			return si > sj
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	result := matched[:limit]

	updateStats := filter.UpdateAccessStats == nil || *filter.UpdateAccessStats
	if updateStats && len(result) > 0 {
		// Fire-and-forget: access-stat bumps must never slow a recall down
		// or fail the call when storage hiccups (mirrors the teacher's
		// addToLongTermBatch idiom of never letting bookkeeping block the
		// read path). Bounded by bumpSlots so a recall storm can't spawn
		// unbounded goroutines; past the bound the bump is dropped and
		// logged rather than queued.
		select {
		case e.bumpSlots <- struct{}{}:
			go func() {
				defer func() { <-e.bumpSlots }()
				e.bumpAccessStats(result)
			}()
		default:
			e.logger.Warn("memory: dropped access-stat bump, outstanding bound reached", "count", len(result))
		}
	}

	// Return copies so the caller's access-stat goroutine racing with a
	// caller mutating the returned slice never corrupts engine state.
	out := make([]Record, len(result))
	copy(out, result)
	return out, nil
}

func (e *Engine) bumpAccessStats(recs []Record) {
	ctx := context.Background()
	now := storage.Now()
	for _, r := range recs {
		r.AccessCount++
		r.LastAccessedAt = now
		if err := e.putRecord(ctx, r); err != nil {
			e.logger.Warn("memory: failed to bump access stats", "id", r.ID, "error", err)
		}
	}
}
