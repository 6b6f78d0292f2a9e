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

package extraction_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/extraction"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage/memstore"
)

type stubExtractor struct {
	name    string
	records []memory.Record
	calls   int
	mu      sync.Mutex
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(_ context.Context, _, _ string, _ []extraction.Message) ([]memory.Record, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.records, nil
}

func (s *stubExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newOps(t *testing.T) memory.Ops {
	t.Helper()
	provider := memstore.New("test")
	ops, ok := provider.AsMemoryOps()
	require.True(t, ok)
	return ops
}

func longMessage(content string) extraction.Message {
	return extraction.Message{ID: "m1", Role: "user", Content: content, Timestamp: time.Now()}
}

func TestIngestFiresOnMaxBatchSize(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	ex := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}

	var fired []extraction.Metrics
	var mu sync.Mutex
	orch := extraction.NewOrchestrator(ops, []extraction.Extractor{ex}, config.ExtractionConfig{
		MaxBatchSize: 2, ExtractionRate: 1, MinMessageLength: 1,
	}, extraction.WithSeed(1), extraction.WithMetricsSink(func(m extraction.Metrics) {
		mu.Lock()
		fired = append(fired, m)
		mu.Unlock()
	}))
	t.Cleanup(orch.Shutdown)

	require.NoError(t, orch.Ingest(ctx, "user-1", "agent-1", []extraction.Message{longMessage("hello there")}))
	require.NoError(t, orch.Ingest(ctx, "user-1", "agent-1", []extraction.Message{longMessage("world again")}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 10*time.Millisecond)

	stats, err := ops.GetStats(ctx, "user-1", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestProcessFlushesImmediately(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	ex := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}

	orch := extraction.NewOrchestrator(ops, []extraction.Extractor{ex}, config.ExtractionConfig{
		MaxBatchSize: 100, ExtractionRate: 1, MinMessageLength: 1,
	}, extraction.WithSeed(1))
	t.Cleanup(orch.Shutdown)

	require.NoError(t, orch.Ingest(ctx, "user-2", "agent-1", []extraction.Message{longMessage("some content")}))

	metrics, err := orch.Process(ctx, "user-2", "agent-1")
	require.NoError(t, err)
	assert.True(t, metrics.Sampled)
	assert.Equal(t, 1, metrics.MemoriesProduced)
}

func TestExtractionRateZeroNeverFires(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	ex := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}

	orch := extraction.NewOrchestrator(ops, []extraction.Extractor{ex}, config.ExtractionConfig{
		MaxBatchSize: 100, ExtractionRate: 0, MinMessageLength: 1,
	}, extraction.WithSeed(1))
	t.Cleanup(orch.Shutdown)

	require.NoError(t, orch.Ingest(ctx, "user-3", "agent-1", []extraction.Message{longMessage("some content")}))
	metrics, err := orch.Process(ctx, "user-3", "agent-1")
	require.NoError(t, err)
	assert.False(t, metrics.Sampled)
	assert.Zero(t, ex.callCount())
}

func TestShortMessagesAreFiltered(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	ex := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}

	orch := extraction.NewOrchestrator(ops, []extraction.Extractor{ex}, config.ExtractionConfig{
		MaxBatchSize: 100, ExtractionRate: 1, MinMessageLength: 100,
	}, extraction.WithSeed(1))
	t.Cleanup(orch.Shutdown)

	require.NoError(t, orch.Ingest(ctx, "user-4", "agent-1", []extraction.Message{longMessage("short")}))
	metrics, err := orch.Process(ctx, "user-4", "agent-1")
	require.NoError(t, err)
	assert.True(t, metrics.Sampled)
	assert.Zero(t, metrics.MemoriesProduced)
}

func TestExtractorChainShortCircuitsOnFirstNonEmptyResult(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	first := &stubExtractor{name: "first", records: []memory.Record{{Content: "fact"}}}
	second := &stubExtractor{name: "second", records: []memory.Record{{Content: "other"}}}

	orch := extraction.NewOrchestrator(ops, []extraction.Extractor{first, second}, config.ExtractionConfig{
		MaxBatchSize: 100, ExtractionRate: 1, MinMessageLength: 1,
	}, extraction.WithSeed(1))
	t.Cleanup(orch.Shutdown)

	require.NoError(t, orch.Ingest(ctx, "user-5", "agent-1", []extraction.Message{longMessage("some content")}))
	metrics, err := orch.Process(ctx, "user-5", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "first", metrics.ExtractorUsed)
	assert.Zero(t, second.callCount())
}

func TestBuffersAreIsolatedPerUserAndAgent(t *testing.T) {
	ctx := context.Background()
	ops := newOps(t)
	ex := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}

	orch := extraction.NewOrchestrator(ops, []extraction.Extractor{ex}, config.ExtractionConfig{
		MaxBatchSize: 100, ExtractionRate: 1, MinMessageLength: 1,
	}, extraction.WithSeed(1))
	t.Cleanup(orch.Shutdown)

	require.NoError(t, orch.Ingest(ctx, "user-a", "agent-1", []extraction.Message{longMessage("content for a")}))
	require.NoError(t, orch.Ingest(ctx, "user-b", "agent-1", []extraction.Message{longMessage("content for b")}))

	metrics, err := orch.Process(ctx, "user-a", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.MessageCount)
}

func TestDeterministicSamplingIsReproducible(t *testing.T) {
	ctx := context.Background()
	ops1 := newOps(t)
	ops2 := newOps(t)
	ex1 := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}
	ex2 := &stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}

	cfg := config.ExtractionConfig{MaxBatchSize: 100, ExtractionRate: 0.5, MinMessageLength: 1}
	orch1 := extraction.NewOrchestrator(ops1, []extraction.Extractor{ex1}, cfg, extraction.WithSeed(7))
	orch2 := extraction.NewOrchestrator(ops2, []extraction.Extractor{ex2}, cfg, extraction.WithSeed(7))
	t.Cleanup(orch1.Shutdown)
	t.Cleanup(orch2.Shutdown)

	var sampled1, sampled2 []bool
	for i := 0; i < 5; i++ {
		require.NoError(t, orch1.Ingest(ctx, "u", "a", []extraction.Message{longMessage("deterministic content")}))
		m1, err := orch1.Process(ctx, "u", "a")
		require.NoError(t, err)
		sampled1 = append(sampled1, m1.Sampled)

		require.NoError(t, orch2.Ingest(ctx, "u", "a", []extraction.Message{longMessage("deterministic content")}))
		m2, err := orch2.Process(ctx, "u", "a")
		require.NoError(t, err)
		sampled2 = append(sampled2, m2.Sampled)
	}

	assert.Equal(t, sampled1, sampled2)
}
