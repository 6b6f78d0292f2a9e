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

package recall_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/recall"
	"github.com/agentdock/agentdock-core/storage/memstore"
)

func newOps(t *testing.T) memory.Ops {
	t.Helper()
	provider := memstore.New("test")
	ops, ok := provider.AsMemoryOps()
	require.True(t, ok)
	return ops
}

func seedRecord(t *testing.T, ops memory.Ops, tier memory.Tier, content string, importance, resonance float64) {
	t.Helper()
	_, err := ops.Store(context.Background(), "user-1", "agent-1", memory.Record{
		Content:    content,
		Tier:       tier,
		Importance: importance,
		Resonance:  resonance,
		Keywords:   []string{content},
	})
	require.NoError(t, err)
}

func seedRecordAt(t *testing.T, ops memory.Ops, tier memory.Tier, content string, importance, resonance float64, lastAccessed time.Time) string {
	t.Helper()
	id, err := ops.Store(context.Background(), "user-1", "agent-1", memory.Record{
		Content:        content,
		Tier:           tier,
		Importance:     importance,
		Resonance:      resonance,
		Keywords:       []string{content},
		LastAccessedAt: lastAccessed,
	})
	require.NoError(t, err)
	return id
}

// fakeVectorOps wraps a real memory.Ops and overrides HybridSearch to
// return a caller-chosen, already-ranked slice, standing in for a
// vector-capable backend without requiring a live vector store.
type fakeVectorOps struct {
	memory.Ops
	hybridResults []memory.Record
}

func (f *fakeVectorOps) StoreWithEmbedding(ctx context.Context, userID, agentID string, rec memory.Record, embedding []float32) (string, error) {
	return f.Store(ctx, userID, agentID, rec)
}

func (f *fakeVectorOps) SearchByVector(ctx context.Context, userID, agentID string, embedding []float32, limit int, minScore float64) ([]memory.Record, error) {
	return f.hybridResults, nil
}

func (f *fakeVectorOps) SearchByText(ctx context.Context, userID, agentID, query string, limit int) ([]memory.Record, error) {
	return f.hybridResults, nil
}

func (f *fakeVectorOps) HybridSearch(ctx context.Context, userID, agentID, query string, embedding []float32, opts memory.HybridOptions) ([]memory.Record, error) {
	return f.hybridResults, nil
}

func (f *fakeVectorOps) FindSimilar(ctx context.Context, userID, agentID, memoryID string, limit int) ([]memory.Record, error) {
	return f.hybridResults, nil
}

func (f *fakeVectorOps) GetEmbedding(ctx context.Context, userID, memoryID string) ([]float32, bool, error) {
	return nil, false, nil
}

func (f *fakeVectorOps) UpdateEmbedding(ctx context.Context, userID, memoryID string, embedding []float32) error {
	return nil
}

// TestRecallScoreFavorsRecentlyAccessedRecords reproduces spec.md's
// composite-score recency term (0.5 * 1/(1+ageDaysSinceLastAccess)): two
// records with identical importance and resonance must not score equally
// once one of them was last accessed far in the past.
func TestRecallScoreFavorsRecentlyAccessedRecords(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	seedRecordAt(t, ops, memory.TierWorking, "stale match", 0.5, 0.5, time.Now().Add(-30*24*time.Hour))
	seedRecordAt(t, ops, memory.TierWorking, "fresh match", 0.5, 0.5, time.Now())

	svc := recall.NewService(ops, config.RecallConfig{})
	results, err := svc.Recall(ctx, recall.Request{UserID: "user-1", AgentID: "agent-1", Query: "match"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	byContent := map[string]recall.Result{}
	for _, r := range results {
		byContent[r.Content] = r
	}
	assert.Greater(t, byContent["fresh match"].Score, byContent["stale match"].Score)
}

// TestRecallHybridPathUsesVectorTextWeights exercises the hybrid-search
// branch of Service.score: HybridSearch returns records already ranked by
// its own RRF fusion, and Service must turn that rank into a score that
// improves as VectorWeight/TextWeight increase, rather than falling back
// to the non-hybrid tierWeight scheme.
func TestRecallHybridPathUsesVectorTextWeights(t *testing.T) {
	ctx := context.Background()
	base := newOps(t)
	id := seedRecordAt(t, base, memory.TierWorking, "vector hit", 0.5, 0.5, time.Now())
	rec, found, err := base.GetByID(ctx, "user-1", id)
	require.NoError(t, err)
	require.True(t, found)

	vec := &fakeVectorOps{Ops: base, hybridResults: []memory.Record{rec}}

	lowWeight := recall.NewService(vec, config.RecallConfig{
		HybridWeights: config.HybridWeights{Vector: 0.1, Text: 0.1},
	})
	lowResults, err := lowWeight.Recall(ctx, recall.Request{
		UserID: "user-1", AgentID: "agent-1", Query: "vector",
		Embedding: []float32{0.1, 0.2},
	})
	require.NoError(t, err)
	require.Len(t, lowResults, 1)

	highWeight := recall.NewService(vec, config.RecallConfig{
		HybridWeights: config.HybridWeights{Vector: 0.9, Text: 0.9},
	})
	highResults, err := highWeight.Recall(ctx, recall.Request{
		UserID: "user-1", AgentID: "agent-1", Query: "vector",
		Embedding: []float32{0.1, 0.2},
	})
	require.NoError(t, err)
	require.Len(t, highResults, 1)

	assert.Greater(t, highResults[0].Score, lowResults[0].Score)
}

func TestRecallFansOutAcrossTiers(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	seedRecord(t, ops, memory.TierWorking, "apple", 0.5, 0.5)
	seedRecord(t, ops, memory.TierSemantic, "apple pie recipe", 0.8, 0.1)
	seedRecord(t, ops, memory.TierEpisodic, "banana", 0.2, 0.2)

	svc := recall.NewService(ops, config.RecallConfig{})
	results, err := svc.Recall(ctx, recall.Request{UserID: "user-1", AgentID: "agent-1", Query: "apple"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Contains(t, r.Content, "apple")
	}
}

func TestRecallRespectsMinRelevance(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	seedRecord(t, ops, memory.TierWorking, "low signal", 0.01, 0.01)

	svc := recall.NewService(ops, config.RecallConfig{})
	results, err := svc.Recall(ctx, recall.Request{
		UserID: "user-1", AgentID: "agent-1", Query: "low",
		MinRelevance: 0.9,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRecallLimitsResults(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	for i := 0; i < 5; i++ {
		seedRecord(t, ops, memory.TierWorking, "repeat term", 0.5, 0.5)
	}

	svc := recall.NewService(ops, config.RecallConfig{Limit: 2})
	results, err := svc.Recall(ctx, recall.Request{UserID: "user-1", AgentID: "agent-1", Query: "repeat"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRecallRestrictsToRequestedTiers(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	seedRecord(t, ops, memory.TierWorking, "shared term", 0.5, 0.5)
	seedRecord(t, ops, memory.TierSemantic, "shared term", 0.5, 0.5)

	svc := recall.NewService(ops, config.RecallConfig{})
	results, err := svc.Recall(ctx, recall.Request{
		UserID: "user-1", AgentID: "agent-1", Query: "shared",
		Tiers: []string{string(memory.TierSemantic)},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, string(memory.TierSemantic), results[0].Tier)
}

func TestRecallCacheServesRepeatQueries(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	seedRecord(t, ops, memory.TierWorking, "cached term", 0.5, 0.5)

	svc := recall.NewService(ops, config.RecallConfig{CacheTTLSeconds: 60})
	req := recall.Request{UserID: "user-1", AgentID: "agent-1", Query: "cached"}

	first, err := svc.Recall(ctx, req)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := svc.Recall(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRecallConcurrentIdenticalQueriesCollapse(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	seedRecord(t, ops, memory.TierWorking, "stampede term", 0.5, 0.5)

	svc := recall.NewService(ops, config.RecallConfig{CacheTTLSeconds: 60})
	req := recall.Request{UserID: "user-1", AgentID: "agent-1", Query: "stampede"}

	var wg sync.WaitGroup
	results := make([][]recall.Result, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Recall(ctx, req)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		assert.Len(t, res, 1)
	}
}
