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

package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage/memstore"
)

// TestSweepTimedOutHoldsBackUnderMinBatchSize reproduces the gating this
// file's sweepTimedOut applies: a buffer old enough to time out but still
// under MinBatchSize is left in place rather than fired, while one that
// has cleared MinBatchSize fires as soon as it times out.
func TestSweepTimedOutHoldsBackUnderMinBatchSize(t *testing.T) {
	ctx := context.Background()
	provider := memstore.New("test")
	ops, ok := provider.AsMemoryOps()
	require.True(t, ok)

	o := NewOrchestrator(ops, []Extractor{&stubExtractor{name: "stub", records: []memory.Record{{Content: "fact"}}}},
		config.ExtractionConfig{MaxBatchSize: 100, MinBatchSize: 2, TimeoutMinutes: 60, ExtractionRate: 1, MinMessageLength: 1},
		WithSeed(1))
	t.Cleanup(o.Shutdown)

	require.NoError(t, o.Ingest(ctx, "under", "agent-1", []Message{{ID: "m1", Role: "user", Content: "too few messages", Timestamp: time.Now()}}))
	require.NoError(t, o.Ingest(ctx, "over", "agent-1", []Message{
		{ID: "m1", Role: "user", Content: "enough messages here", Timestamp: time.Now()},
		{ID: "m2", Role: "user", Content: "enough messages here", Timestamp: time.Now()},
	}))

	o.mu.Lock()
	o.buffers[bufferKey{"under", "agent-1"}].createdAt = time.Now().Add(-time.Hour)
	o.buffers[bufferKey{"over", "agent-1"}].createdAt = time.Now().Add(-time.Hour)
	o.mu.Unlock()

	o.sweepTimedOut()

	o.mu.Lock()
	_, underStillBuffered := o.buffers[bufferKey{"under", "agent-1"}]
	_, overStillBuffered := o.buffers[bufferKey{"over", "agent-1"}]
	o.mu.Unlock()

	assert.True(t, underStillBuffered, "a buffer under MinBatchSize must not be fired by a timeout sweep")
	assert.False(t, overStillBuffered, "a buffer at or above MinBatchSize must fire once timed out")
}

// stubExtractor mirrors orchestrator_test.go's black-box stub; kept
// separately here because this file lives in package extraction, not
// extraction_test.
type stubExtractor struct {
	name    string
	records []memory.Record
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(_ context.Context, _, _ string, _ []Message) ([]memory.Record, error) {
	return s.records, nil
}
