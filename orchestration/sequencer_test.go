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

package orchestration_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/orchestration"
	"github.com/agentdock/agentdock-core/session"
	"github.com/agentdock/agentdock-core/storage/memstore"
)

func sequenceConfig() orchestration.Config {
	return orchestration.Config{
		Steps: []orchestration.Step{
			{Name: "checkout", IsDefault: true, Sequence: []string{"add_to_cart", "pay", "confirm"}},
		},
	}
}

func TestSequenceDelegationAdvancesStrictlyInOrder(t *testing.T) {
	ctx := context.Background()
	cfg := sequenceConfig()
	all := []string{"add_to_cart", "pay", "confirm", "cancel"}

	provider := memstore.New("test")
	sessions := session.NewManager(provider, config.SessionConfig{})
	t.Cleanup(sessions.Shutdown)
	orch := orchestration.NewManager(sessions, config.OrchestrationConfig{})

	require.NoError(t, orch.EnsureState(ctx, "seq-1"))

	allowed, err := orch.AllowedTools(ctx, cfg, "seq-1", all)
	require.NoError(t, err)
	assert.Equal(t, []string{"add_to_cart"}, allowed)

	t.Run("out-of-order use does not advance", func(t *testing.T) {
		require.NoError(t, orch.OnToolUsed(ctx, cfg, "seq-1", "pay"))
		allowed, err := orch.AllowedTools(ctx, cfg, "seq-1", all)
		require.NoError(t, err)
		assert.Equal(t, []string{"add_to_cart"}, allowed)
	})

	t.Run("in-order use advances one step", func(t *testing.T) {
		require.NoError(t, orch.OnToolUsed(ctx, cfg, "seq-1", "add_to_cart"))
		allowed, err := orch.AllowedTools(ctx, cfg, "seq-1", all)
		require.NoError(t, err)
		assert.Equal(t, []string{"pay"}, allowed)
	})

	t.Run("exhausted sequence allows nothing", func(t *testing.T) {
		require.NoError(t, orch.OnToolUsed(ctx, cfg, "seq-1", "pay"))
		require.NoError(t, orch.OnToolUsed(ctx, cfg, "seq-1", "confirm"))
		allowed, err := orch.AllowedTools(ctx, cfg, "seq-1", all)
		require.NoError(t, err)
		assert.Empty(t, allowed)
	})
}
