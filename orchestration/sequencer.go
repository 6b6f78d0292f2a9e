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

	"github.com/agentdock/agentdock-core/session"
)

// Sequencer implements StepSequencer (spec §4.4): a step's optional
// ordered tool sequence, tracked via the session's sequenceIndex.
type Sequencer struct {
	sessions *session.Manager
}

// NewSequencer builds a Sequencer backed by the given session manager.
func NewSequencer(sessions *session.Manager) *Sequencer {
	return &Sequencer{sessions: sessions}
}

// FilterToolsBySequence returns exactly the single tool at the session's
// current sequenceIndex, intersected with allToolIds — or an empty list
// once the index has walked past the end of the sequence (the step is
// exhausted).
func (s *Sequencer) FilterToolsBySequence(ctx context.Context, step Step, sessionID string, allToolIds []string) ([]string, error) {
	if len(step.Sequence) == 0 {
		return nil, nil
	}

	rec, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if rec.SequenceIndex >= len(step.Sequence) {
		return []string{}, nil
	}

	want := step.Sequence[rec.SequenceIndex]
	for _, id := range allToolIds {
		if id == want {
			return []string{id}, nil
		}
	}
	return []string{}, nil
}

// Advance increments the session's sequenceIndex if toolID is the tool at
// the current index; otherwise it is a no-op. Never rewinds.
func (s *Sequencer) Advance(ctx context.Context, step Step, sessionID, toolID string) error {
	if len(step.Sequence) == 0 {
		return nil
	}

	_, _, err := s.sessions.Update(ctx, sessionID, func(r *session.Record) {
		if r.SequenceIndex < len(step.Sequence) && step.Sequence[r.SequenceIndex] == toolID {
			r.SequenceIndex++
		}
	})
	return err
}
