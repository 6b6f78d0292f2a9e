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

package orchestration

import (
	"context"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/session"
)

// Manager implements OrchestrationManager (spec §4.5): step resolution,
// tool filtering, tool-use reactions and token accumulation, all tracked
// against a session.Manager.
type Manager struct {
	sessions       *session.Manager
	sequencer      *Sequencer
	recentToolsCap int
}

// NewManager builds a Manager over sessions, applying cfg's defaults.
func NewManager(sessions *session.Manager, cfg config.OrchestrationConfig) *Manager {
	cfg.SetDefaults()
	return &Manager{
		sessions:       sessions,
		sequencer:      NewSequencer(sessions),
		recentToolsCap: cfg.RecentToolsCap,
	}
}

// EnsureState creates the session's state if absent, a no-op otherwise.
func (m *Manager) EnsureState(ctx context.Context, sessionID string) error {
	_, err := m.sessions.GetOrCreate(ctx, sessionID)
	return err
}

// ResolveStep picks the active step for sessionID against cfg (spec §4.5
// "Step resolution"). A pure function of cfg and the session's current
// state (spec §8 property 3) except for the single persist when the
// resolved step differs from the one already stored.
func (m *Manager) ResolveStep(ctx context.Context, cfg Config, sessionID string) (*Step, bool, error) {
	rec, err := m.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}

	resolved, ok := resolveCandidate(cfg, rec)
	if !ok {
		// No candidate matched: reuse the currently-persisted step if it
		// still exists in the configuration, else fall back to default.
		if rec.ActiveStep != nil {
			if step, stillExists := cfg.byName(*rec.ActiveStep); stillExists {
				return &step, true, nil
			}
		}
		if def, hasDefault := cfg.defaultStep(); hasDefault {
			if err := m.persistActiveStep(ctx, sessionID, def.Name, rec); err != nil {
				return nil, false, err
			}
			return &def, true, nil
		}
		return nil, false, nil
	}

	if err := m.persistActiveStep(ctx, sessionID, resolved.Name, rec); err != nil {
		return nil, false, err
	}
	return &resolved, true, nil
}

// resolveCandidate iterates steps in declaration order, skipping the
// default and steps with no conditions, and returns the first whose
// conditions all hold against rec.
func resolveCandidate(cfg Config, rec *session.Record) (Step, bool) {
	for _, step := range cfg.Steps {
		if step.IsDefault || len(step.Conditions) == 0 {
			continue
		}
		if conditionsHold(step.Conditions, rec) {
			return step, true
		}
	}
	return Step{}, false
}

// mostRecentTool returns the head of rec.RecentlyUsedTools, the tool from
// the single most recent onToolUsed call, or "" if none has happened yet.
func mostRecentTool(rec *session.Record) string {
	if len(rec.RecentlyUsedTools) == 0 {
		return ""
	}
	return rec.RecentlyUsedTools[0]
}

func conditionsHold(conditions []Condition, rec *session.Record) bool {
	for _, c := range conditions {
		switch c.Type {
		case ConditionToolUsed:
			// Matched against the single most recently used tool, not full
			// history membership: recentlyUsedTools is never cleared, so a
			// membership check would leave every step whose tool was ever
			// used permanently eligible and resolution stuck on whichever
			// was declared first (spec.md S1: using "search" then
			// "summarize" must move resolution to the "summarize" step).
			if mostRecentTool(rec) != c.ToolUsed {
				return false
			}
		default:
			// Unknown condition variants never hold — a conservative
			// default that keeps resolution deterministic (spec §9
			// "Runtime-typed content... every consumer exhaustively
			// handles variants").
			return false
		}
	}
	return true
}

// persistActiveStep writes name as the session's active step only if it
// differs from what is already stored.
func (m *Manager) persistActiveStep(ctx context.Context, sessionID, name string, rec *session.Record) error {
	if rec.ActiveStep != nil && *rec.ActiveStep == name {
		return nil
	}
	_, _, err := m.sessions.Update(ctx, sessionID, func(r *session.Record) {
		n := name
		r.ActiveStep = &n
	})
	return err
}

// AllowedTools applies the active step's tool-filtering precedence (spec
// §4.5 "Tool filtering"): sequence delegation, then allowed-intersection,
// then denied-subtraction, then passthrough. Always a subset of
// allToolIds (spec §8 property 4).
func (m *Manager) AllowedTools(ctx context.Context, cfg Config, sessionID string, allToolIds []string) ([]string, error) {
	step, ok, err := m.ResolveStep(ctx, cfg, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return append([]string(nil), allToolIds...), nil
	}

	if len(step.Sequence) > 0 {
		return m.sequencer.FilterToolsBySequence(ctx, *step, sessionID, allToolIds)
	}

	if step.AvailableTools != nil {
		if len(step.AvailableTools.Allowed) > 0 {
			return intersect(allToolIds, step.AvailableTools.Allowed), nil
		}
		if len(step.AvailableTools.Denied) > 0 {
			return subtract(allToolIds, step.AvailableTools.Denied), nil
		}
	}
	return append([]string(nil), allToolIds...), nil
}

// OnToolUsed records a tool invocation: appends it to the head of
// recentlyUsedTools (de-duplicated, bounded) and advances the active
// step's sequence. Both happen within one serialized session update
// (spec §5 "advance always runs strictly after the update that recorded
// the tool's use").
func (m *Manager) OnToolUsed(ctx context.Context, cfg Config, sessionID, toolID string) error {
	step, ok, err := m.ResolveStep(ctx, cfg, sessionID)
	if err != nil {
		return err
	}

	toolsCap := m.recentToolsCap
	_, _, err = m.sessions.Update(ctx, sessionID, func(r *session.Record) {
		r.RecentlyUsedTools = pushMostRecent(r.RecentlyUsedTools, toolID, toolsCap)
		if ok && r.SequenceIndex < len(step.Sequence) && step.Sequence[r.SequenceIndex] == toolID {
			r.SequenceIndex++
		}
	})
	return err
}

// AddCumulativeTokens adds usage to the session's running totals (spec
// §8 property 6: monotonically non-decreasing).
func (m *Manager) AddCumulativeTokens(ctx context.Context, sessionID string, usage session.TokenUsage) error {
	_, _, err := m.sessions.Update(ctx, sessionID, func(r *session.Record) {
		r.CumulativeTokenUsage.Add(usage)
	})
	return err
}

// Reset reinitializes a session's orchestration state (active step,
// sequence index, recently used tools, token totals) without removing
// the session itself.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	return m.sessions.ResetState(ctx, sessionID)
}

// Remove deletes a session's state entirely.
func (m *Manager) Remove(ctx context.Context, sessionID string) error {
	return m.sessions.CleanupSession(ctx, sessionID)
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// pushMostRecent prepends id to existing (de-duplicating any prior
// occurrence) and truncates to cap entries.
func pushMostRecent(existing []string, id string, maxLen int) []string {
	out := make([]string, 0, len(existing)+1)
	out = append(out, id)
	for _, s := range existing {
		if s != id {
			out = append(out, s)
		}
	}
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
