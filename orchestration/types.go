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

// Package orchestration implements the StepSequencer and OrchestrationManager
// (spec §4.4, §4.5): a read-only step graph drives which tools a model may
// call next, tracked per session.
package orchestration

// ConditionType tags the one required condition variant. The spec leaves
// room for more (e.g. a time-of-day or turn-count condition) without
// widening the core surface today.
type ConditionType string

const ConditionToolUsed ConditionType = "tool_used"

// Condition is a tagged-variant predicate evaluated against session state.
type Condition struct {
	Type ConditionType `json:"type" yaml:"type"`

	// ToolUsed is populated when Type == ConditionToolUsed: the condition
	// holds if this tool id is the single most recently used one (the head
	// of the session's recentlyUsedTools), not merely used at some point —
	// recentlyUsedTools is never cleared, so a plain membership check
	// would leave every step whose tool was ever used permanently eligible.
	ToolUsed string `json:"toolUsed,omitempty" yaml:"tool_used,omitempty"`
}

// AvailableTools narrows a step's tool set by an allow- or deny-list.
// Mutually exclusive per spec §3; Allow takes precedence if both are set.
type AvailableTools struct {
	Allowed []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Denied  []string `json:"denied,omitempty" yaml:"denied,omitempty"`
}

// Step is one node of the orchestration configuration (spec §3
// "Orchestration configuration").
type Step struct {
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty"`
	IsDefault      bool            `json:"isDefault,omitempty" yaml:"is_default,omitempty"`
	Conditions     []Condition     `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	AvailableTools *AvailableTools `json:"availableTools,omitempty" yaml:"available_tools,omitempty"`
	Sequence       []string        `json:"sequence,omitempty" yaml:"sequence,omitempty"`
}

// Config is the read-only orchestration configuration passed by the caller
// to every OrchestrationManager operation. It is never persisted — only
// the session's resolved state is.
type Config struct {
	Steps []Step `json:"steps" yaml:"steps"`
}

// defaultStep returns the configured isDefault step, if any.
func (c Config) defaultStep() (Step, bool) {
	for _, s := range c.Steps {
		if s.IsDefault {
			return s, true
		}
	}
	return Step{}, false
}

// byName looks up a step by name.
func (c Config) byName(name string) (Step, bool) {
	for _, s := range c.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}
