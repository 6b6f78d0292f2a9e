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
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/agentdock/agentdock-core/errs"
	"github.com/agentdock/agentdock-core/storage"
)

const (
	nsMemories    = "memories"
	nsConnections = "connections"
)

// maxOutstandingAccessBumps bounds the number of in-flight fire-and-forget
// access-stat goroutines (spec §9 "Fire-and-forget updates": an explicit
// upper bound, dropping work past it rather than letting recall callers
// spawn unbounded goroutines under load).
const maxOutstandingAccessBumps = 64

// Engine is the generic Ops implementation shared by every storage
// backend (spec §4.1: "unifying KV... operations across backends"). It
// stores JSON-encoded rows under the memories: and connections: namespaces
// of the given storage.Provider and never assumes anything backend
// specific — tenancy isolation, recall scoring and decay are all done in
// Go, not pushed down to the store.
type Engine struct {
	provider storage.Provider
	logger   *slog.Logger

	// bumpSlots bounds outstanding bumpAccessStats goroutines.
	bumpSlots chan struct{}
}

// NewEngine wraps provider with the generic memory engine.
func NewEngine(provider storage.Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		provider:  provider,
		logger:    logger,
		bumpSlots: make(chan struct{}, maxOutstandingAccessBumps),
	}
}

func memoryKey(userID, agentID, id string) string {
	return userID + "/" + agentID + "/" + id
}

func memoryPrefix(userID, agentID string) string {
	if agentID == "" {
		return userID + "/"
	}
	return userID + "/" + agentID + "/"
}

func connectionKey(userID, sourceID, targetID string) string {
	return userID + "/" + sourceID + "/" + targetID
}

func connectionPrefix(userID string) string {
	return userID + "/"
}

func (e *Engine) getRecord(ctx context.Context, userID, agentID, id string) (Record, bool, error) {
	raw, ok, err := e.provider.Get(ctx, memoryKey(userID, agentID, id), storage.Options{Namespace: nsMemories})
	if err != nil {
		return Record{}, false, errs.Storage("Engine.getRecord", err)
	}
	if !ok {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		e.logger.Warn("memory: failed to decode record, skipping", "key", id, "error", err)
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (e *Engine) putRecord(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return errs.Storage("Engine.putRecord", err)
	}
	key := memoryKey(rec.UserID, rec.AgentID, rec.ID)
	if err := e.provider.Set(ctx, key, raw, storage.Options{Namespace: nsMemories}); err != nil {
		return errs.Storage("Engine.putRecord", err)
	}
	return nil
}

// Store creates a new memory record and returns its id.
func (e *Engine) Store(ctx context.Context, userID, agentID string, rec Record) (string, error) {
	if userID == "" {
		return "", errs.Validation("Engine.Store", fmt.Errorf("userID is required"))
	}
	now := storage.Now()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.UserID = userID
	rec.AgentID = agentID
	if rec.Tier == "" {
		rec.Tier = TierWorking
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.LastAccessedAt.IsZero() {
		rec.LastAccessedAt = now
	}
	if rec.ExtractionMethod == "" {
		rec.ExtractionMethod = ExtractionManual
	}

	if err := e.putRecord(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// listUserMemories scans every record for (userID, agentID). agentID
// empty means "every agent for this user" — still gated by userID so
// tenant isolation (spec §3 "Ownership and tenancy") never depends on
// agentID being supplied.
func (e *Engine) listUserMemories(ctx context.Context, userID, agentID string) ([]Record, error) {
	if userID == "" {
		return nil, errs.TenancyViolation("Engine.listUserMemories", fmt.Errorf("userID is required"))
	}
	keys, err := e.provider.List(ctx, memoryPrefix(userID, agentID), storage.Options{Namespace: nsMemories})
	if err != nil {
		return nil, errs.Storage("Engine.listUserMemories", err)
	}

	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := e.provider.Get(ctx, k, storage.Options{Namespace: nsMemories})
		if err != nil {
			return nil, errs.Storage("Engine.listUserMemories", err)
		}
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			e.logger.Warn("memory: failed to decode record, skipping", "key", k, "error", err)
			continue
		}
		// Defense in depth: never return a row whose userID doesn't match,
		// even if a key collision somehow produced one.
		if rec.UserID != userID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Update applies a sparse patch to an existing record.
func (e *Engine) Update(ctx context.Context, userID, agentID, id string, partial Partial) error {
	rec, ok, err := e.getRecord(ctx, userID, agentID, id)
	if err != nil {
		return err
	}
	if !ok || rec.UserID != userID {
		return errs.Storage("Engine.Update", fmt.Errorf("memory %q not found", id))
	}

	if partial.Content != nil {
		rec.Content = *partial.Content
	}
	if partial.Tier != nil {
		rec.Tier = *partial.Tier
	}
	if partial.Importance != nil {
		rec.Importance = *partial.Importance
	}
	if partial.Resonance != nil {
		rec.Resonance = *partial.Resonance
	}
	if partial.Keywords != nil {
		rec.Keywords = partial.Keywords
	}
	if partial.Metadata != nil {
		rec.Metadata = partial.Metadata
	}
	rec.UpdatedAt = storage.Now()

	return e.putRecord(ctx, rec)
}

// Delete removes a memory record.
func (e *Engine) Delete(ctx context.Context, userID, agentID, id string) error {
	rec, ok, err := e.getRecord(ctx, userID, agentID, id)
	if err != nil {
		return err
	}
	if !ok || rec.UserID != userID {
		return nil
	}
	if _, err := e.provider.Delete(ctx, memoryKey(userID, agentID, id), storage.Options{Namespace: nsMemories}); err != nil {
		return errs.Storage("Engine.Delete", err)
	}
	return nil
}

// GetByID looks a record up without knowing its agent, enforcing tenancy
// via userID alone — callers that only have a memory id (e.g. from a
// connection edge) still cannot cross users.
func (e *Engine) GetByID(ctx context.Context, userID, id string) (Record, bool, error) {
	if userID == "" {
		return Record{}, false, errs.TenancyViolation("Engine.GetByID", fmt.Errorf("userID is required"))
	}
	keys, err := e.provider.List(ctx, userID+"/", storage.Options{Namespace: nsMemories})
	if err != nil {
		return Record{}, false, errs.Storage("Engine.GetByID", err)
	}
	suffix := "/" + id
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			raw, ok, err := e.provider.Get(ctx, k, storage.Options{Namespace: nsMemories})
			if err != nil {
				return Record{}, false, errs.Storage("Engine.GetByID", err)
			}
			if !ok {
				continue
			}
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil {
				e.logger.Warn("memory: failed to decode record, skipping", "key", k, "error", err)
				continue
			}
			if rec.UserID == userID && rec.ID == id {
				return rec, true, nil
			}
		}
	}
	return Record{}, false, nil
}

// GetStats aggregates counts and sizes for (userID, agentID). agentID
// empty aggregates across every agent for that user.
func (e *Engine) GetStats(ctx context.Context, userID, agentID string) (Stats, error) {
	recs, err := e.listUserMemories(ctx, userID, agentID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{CountByTier: make(map[Tier]int)}
	var importanceSum float64
	for _, r := range recs {
		stats.Count++
		stats.CountByTier[r.Tier]++
		importanceSum += r.Importance
		stats.SizeBytes += int64(len(r.Content))
	}
	if stats.Count > 0 {
		stats.AvgImportance = importanceSum / float64(stats.Count)
	}
	return stats, nil
}

// CreateConnections upserts edges, taking the max strength on conflict
// (spec §3's Memory connection invariant).
func (e *Engine) CreateConnections(ctx context.Context, userID string, conns []Connection) error {
	if userID == "" {
		return errs.TenancyViolation("Engine.CreateConnections", fmt.Errorf("userID is required"))
	}
	now := storage.Now()
	for _, c := range conns {
		key := connectionKey(userID, c.SourceID, c.TargetID)
		existing, ok, err := e.getConnection(ctx, userID, c.SourceID, c.TargetID)
		if err != nil {
			return err
		}
		if ok && existing.Strength > c.Strength {
			c.Strength = existing.Strength
		}
		if c.CreatedAt.IsZero() {
			if ok {
				c.CreatedAt = existing.CreatedAt
			} else {
				c.CreatedAt = now
			}
		}
		raw, err := json.Marshal(c)
		if err != nil {
			return errs.Storage("Engine.CreateConnections", err)
		}
		if err := e.provider.Set(ctx, key, raw, storage.Options{Namespace: nsConnections}); err != nil {
			return errs.Storage("Engine.CreateConnections", err)
		}
	}
	return nil
}

func (e *Engine) getConnection(ctx context.Context, userID, sourceID, targetID string) (Connection, bool, error) {
	raw, ok, err := e.provider.Get(ctx, connectionKey(userID, sourceID, targetID), storage.Options{Namespace: nsConnections})
	if err != nil {
		return Connection{}, false, errs.Storage("Engine.getConnection", err)
	}
	if !ok {
		return Connection{}, false, nil
	}
	var c Connection
	if err := json.Unmarshal(raw, &c); err != nil {
		return Connection{}, false, nil
	}
	return c, true, nil
}

func (e *Engine) listUserConnections(ctx context.Context, userID string) ([]Connection, error) {
	keys, err := e.provider.List(ctx, connectionPrefix(userID), storage.Options{Namespace: nsConnections})
	if err != nil {
		return nil, errs.Storage("Engine.listUserConnections", err)
	}
	out := make([]Connection, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := e.provider.Get(ctx, k, storage.Options{Namespace: nsConnections})
		if err != nil {
			return nil, errs.Storage("Engine.listUserConnections", err)
		}
		if !ok {
			continue
		}
		var c Connection
		if err := json.Unmarshal(raw, &c); err != nil {
			e.logger.Warn("memory: failed to decode connection, skipping", "key", k, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// FindConnected runs a breadth-first, cycle-safe traversal from the seed
// memory (spec §4.2 "Connection traversal").
func (e *Engine) FindConnected(ctx context.Context, userID, memoryID string, depth int, minStrength float64) (ConnectionResult, error) {
	if userID == "" {
		return ConnectionResult{}, errs.TenancyViolation("Engine.FindConnected", fmt.Errorf("userID is required"))
	}
	conns, err := e.listUserConnections(ctx, userID)
	if err != nil {
		return ConnectionResult{}, err
	}

	adjacency := make(map[string][]Connection)
	for _, c := range conns {
		if c.Strength < minStrength {
			continue
		}
		adjacency[c.SourceID] = append(adjacency[c.SourceID], c)
		adjacency[c.TargetID] = append(adjacency[c.TargetID], c)
	}

	visited := map[string]bool{memoryID: true}
	frontier := []string{memoryID}
	touchedConns := make(map[string]Connection)

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, c := range adjacency[id] {
				other := c.TargetID
				if other == id {
					other = c.SourceID
				}
				ckey := c.SourceID + "->" + c.TargetID
				touchedConns[ckey] = c
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	var memories []Record
	for id := range visited {
		rec, ok, err := e.GetByID(ctx, userID, id)
		if err != nil {
			return ConnectionResult{}, err
		}
		if ok {
			memories = append(memories, rec)
		}
	}

	var connections []Connection
	for _, c := range touchedConns {
		if visited[c.SourceID] && visited[c.TargetID] {
			connections = append(connections, c)
		}
	}

	sort.Slice(memories, func(i, j int) bool { return memories[i].ID < memories[j].ID })
	sort.Slice(connections, func(i, j int) bool {
		if connections[i].SourceID != connections[j].SourceID {
			return connections[i].SourceID < connections[j].SourceID
		}
		return connections[i].TargetID < connections[j].TargetID
	})

	return ConnectionResult{Memories: memories, Connections: connections}, nil
}
