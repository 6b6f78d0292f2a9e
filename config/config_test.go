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

package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/config"
)

func TestDefaultAppliesEverySectionsDefaults(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	assert.EqualValues(t, 1800, cfg.Session.TTLSeconds)
	assert.EqualValues(t, 20, cfg.Orchestration.RecentToolsCap)
	assert.Equal(t, 10, cfg.Recall.Limit)
	assert.Equal(t, 0.2, cfg.Extraction.ExtractionRate)
}

func TestLoadFromStringAppliesDefaultsToUnsetFields(t *testing.T) {
	cfg, err := config.LoadFromString(`
session:
  ttl_seconds: 60
`)
	require.NoError(t, err)
	assert.EqualValues(t, 60, cfg.Session.TTLSeconds)
	assert.EqualValues(t, 60_000, cfg.Session.SweepIntervalMs)
	assert.Equal(t, 10, cfg.Recall.Limit)
}

func TestLoadFromStringExpandsEnvVars(t *testing.T) {
	t.Setenv("AGENTDOCK_TEST_TTL", "42")

	cfg, err := config.LoadFromString(`
session:
  ttl_seconds: ${AGENTDOCK_TEST_TTL}
`)
	require.NoError(t, err)
	assert.EqualValues(t, 42, cfg.Session.TTLSeconds)
}

func TestLoadFromStringRejectsInvalidConfig(t *testing.T) {
	_, err := config.LoadFromString(`
extraction:
  min_batch_size: 50
  max_batch_size: 10
`)
	assert.Error(t, err)
}

func TestRecallConfigSetDefaultsLeavesExplicitWeights(t *testing.T) {
	cfg := config.RecallConfig{HybridWeights: config.HybridWeights{Vector: 0.9, Text: 0.1}}
	cfg.SetDefaults()
	assert.Equal(t, 0.9, cfg.HybridWeights.Vector)
	assert.Equal(t, 0.1, cfg.HybridWeights.Text)
}
