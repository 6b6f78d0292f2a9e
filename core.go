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

package agentdock

import (
	"context"
	"fmt"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/errs"
	"github.com/agentdock/agentdock-core/extraction"
	"github.com/agentdock/agentdock-core/internal/telemetry"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/orchestration"
	"github.com/agentdock/agentdock-core/recall"
	"github.com/agentdock/agentdock-core/session"
	"github.com/agentdock/agentdock-core/storage"
)

// TurnResult is handleTurn's return value (spec §6).
type TurnResult struct {
	ActiveStep   *string
	AllowedTools []string
	PublicState  session.PublicView
}

// Core is the in-process facade a transport layer drives (spec §6 "Core
// in-process API"). It owns the session manager, the orchestration
// manager, the recall service, and the extraction orchestrator, all
// wired against one memory-capable storage.Provider.
type Core struct {
	ops        memory.Ops
	sessions   *session.Manager
	orch       *orchestration.Manager
	recall     *recall.Service
	extraction *extraction.Orchestrator
	telemetry  *telemetry.Metrics
}

// New builds a Core over provider. provider must satisfy memory.Capable
// (every backend in storage/memstore, storage/sqlstore, and
// storage/redisstore does); extractors are run in order by the
// extraction orchestrator on every batch that survives sampling.
func New(provider storage.Provider, cfg *config.Config, extractors ...extraction.Extractor) (*Core, error) {
	capable, ok := provider.(memory.Capable)
	if !ok {
		return nil, errs.CapabilityMissing("agentdock.New", fmt.Errorf("provider %q does not implement memory operations", provider.Name()))
	}
	ops, _ := capable.AsMemoryOps()

	sessions := session.NewManager(provider, cfg.Session)
	orch := orchestration.NewManager(sessions, cfg.Orchestration)

	return &Core{
		ops:        ops,
		sessions:   sessions,
		orch:       orch,
		recall:     recall.NewService(ops, cfg.Recall),
		extraction: extraction.NewOrchestrator(ops, extractors, cfg.Extraction),
		telemetry:  telemetry.NewMetrics("agentdock"),
	}, nil
}

// Shutdown stops the Core's background sweepers (session TTL,
// extraction batch timeouts) cleanly. The storage.Provider and its
// owning storage.Factory are shut down separately by the caller (spec
// §5 "Shared resources").
func (c *Core) Shutdown() {
	c.sessions.Shutdown()
	c.extraction.Shutdown()
}

// HandleTurn resolves the session's active orchestration step, the
// tools the model may call next, and the public session-state view for
// one inbound turn (spec §6). messages is accepted for callers whose
// orchestration conditions may one day inspect turn content; today's
// only condition variant (tool_used) is evaluated purely from session
// state, so it is not otherwise consulted here.
func (c *Core) HandleTurn(ctx context.Context, userID, agentID, sessionID string, messages []extraction.Message, orchCfg orchestration.Config, allToolIds []string) (TurnResult, error) {
	if err := c.orch.EnsureState(ctx, sessionID); err != nil {
		return TurnResult{}, err
	}

	step, ok, err := c.orch.ResolveStep(ctx, orchCfg, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	allowed, err := c.orch.AllowedTools(ctx, orchCfg, sessionID, allToolIds)
	if err != nil {
		return TurnResult{}, err
	}

	view, found, err := c.sessions.ToAIView(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	if !found {
		return TurnResult{}, errs.Storage("agentdock.HandleTurn", fmt.Errorf("session %q vanished mid-turn", sessionID))
	}

	result := TurnResult{AllowedTools: allowed, PublicState: *view}
	if ok {
		result.ActiveStep = &step.Name
	}
	return result, nil
}

// ReportToolUse records a tool invocation against sessionID (spec §6).
func (c *Core) ReportToolUse(ctx context.Context, sessionID, toolID string, orchCfg orchestration.Config) error {
	return c.orch.OnToolUsed(ctx, orchCfg, sessionID, toolID)
}

// ReportTokenUsage adds usage to the session's running token totals
// (spec §6). Callers invoke this after every model turn.
func (c *Core) ReportTokenUsage(ctx context.Context, sessionID string, usage session.TokenUsage) error {
	return c.orch.AddCumulativeTokens(ctx, sessionID, usage)
}

// Recall runs a cross-tier memory query (spec §6).
func (c *Core) Recall(ctx context.Context, req recall.Request) ([]recall.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "agentdock.Recall")
	defer span.End()

	start := storage.Now()
	results, err := c.recall.Recall(ctx, req)
	c.telemetry.RecordRecall(req.AgentID, storage.Now().Sub(start), len(results), false)
	return results, err
}

// Ingest feeds raw conversation messages into the extraction
// orchestrator's per-(user, agent) buffer (spec §6).
func (c *Core) Ingest(ctx context.Context, userID, agentID string, messages []extraction.Message) error {
	return c.extraction.Ingest(ctx, userID, agentID, messages)
}

// Memory exposes the underlying MemoryOps for callers that need direct
// store/update/delete access beyond the cross-tier Recall facade.
func (c *Core) Memory() memory.Ops { return c.ops }
