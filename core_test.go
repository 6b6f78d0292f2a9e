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

package agentdock_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentdock "github.com/agentdock/agentdock-core"
	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/extraction"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/orchestration"
	"github.com/agentdock/agentdock-core/recall"
	"github.com/agentdock/agentdock-core/session"
	"github.com/agentdock/agentdock-core/storage"
	_ "github.com/agentdock/agentdock-core/storage/memstore"
)

func newCore(t *testing.T) *agentdock.Core {
	t.Helper()
	cfg := config.Default()
	factory := storage.NewFactory()
	provider, err := factory.Get(cfg.Storage)
	require.NoError(t, err)
	core, err := agentdock.New(provider, cfg)
	require.NoError(t, err)
	t.Cleanup(core.Shutdown)
	return core
}

func orchCfg() orchestration.Config {
	return orchestration.Config{
		Steps: []orchestration.Step{
			{Name: "default", IsDefault: true, AvailableTools: &orchestration.AvailableTools{Allowed: []string{"search"}}},
		},
	}
}

func TestHandleTurnResolvesStepAndTools(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	out, err := core.HandleTurn(ctx, "user-1", "agent-1", "sess-1", nil, orchCfg(), []string{"search", "delete"})
	require.NoError(t, err)
	require.NotNil(t, out.ActiveStep)
	assert.Equal(t, "default", *out.ActiveStep)
	assert.Equal(t, []string{"search"}, out.AllowedTools)
	assert.Equal(t, "sess-1", out.PublicState.SessionID)
}

func TestReportToolUseAndTokenUsage(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)
	cfg := orchCfg()

	_, err := core.HandleTurn(ctx, "user-1", "agent-1", "sess-2", nil, cfg, []string{"search"})
	require.NoError(t, err)

	require.NoError(t, core.ReportToolUse(ctx, "sess-2", "search", cfg))
	require.NoError(t, core.ReportTokenUsage(ctx, "sess-2", session.TokenUsage{Total: 100}))

	out, err := core.HandleTurn(ctx, "user-1", "agent-1", "sess-2", nil, cfg, []string{"search"})
	require.NoError(t, err)
	assert.EqualValues(t, 100, out.PublicState.CumulativeTokenUsage.Total)
	assert.Contains(t, out.PublicState.RecentlyUsedTools, "search")
}

func TestIngestAndRecallRoundTrip(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	require.NotNil(t, core.Memory())

	_, err := core.Memory().Store(ctx, "user-1", "agent-1", memory.Record{
		Content: "durable fact about onions",
		Tier:    memory.TierSemantic,
		Keywords: []string{"onions"},
	})
	require.NoError(t, err)

	results, err := core.Recall(ctx, recall.Request{UserID: "user-1", AgentID: "agent-1", Query: "onions"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, "onions")
}

func TestIngestFeedsExtractionBuffer(t *testing.T) {
	ctx := context.Background()
	core := newCore(t)

	err := core.Ingest(ctx, "user-1", "agent-1", []extraction.Message{
		{ID: "m1", Role: "user", Content: "remember that I like long walks on the beach"},
	})
	require.NoError(t, err)
}
