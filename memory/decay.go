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

package memory

import (
	"context"
	"math"

	"github.com/agentdock/agentdock-core/storage"
)

// ApplyDecay recomputes resonance for every memory belonging to (userID,
// agentID) and deletes rows that fall to or below the floor, except
// semantic-tier memories which are never removed by decay (spec §4.2
// "Decay": r' = r*exp(-rate*ageDays) + importance*importanceWeight +
// ln(accessCount+1)*accessBoost).
func (e *Engine) ApplyDecay(ctx context.Context, userID, agentID string, rules DecayRules) (DecayResult, error) {
	recs, err := e.listUserMemories(ctx, userID, agentID)
	if err != nil {
		return DecayResult{}, err
	}

	now := storage.Now()
	var result DecayResult

	for _, rec := range recs {
		result.Processed++

		ageDays := now.Sub(rec.LastAccessedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}

		next := rec.Resonance*math.Exp(-rules.Rate*ageDays) +
			rec.Importance*rules.ImportanceWeight +
			math.Log(float64(rec.AccessCount)+1)*rules.AccessBoost

		if next <= rules.Floor && rec.Tier != TierSemantic {
			if err := e.Delete(ctx, rec.UserID, rec.AgentID, rec.ID); err != nil {
				return result, err
			}
			result.Removed++
			continue
		}

		if next != rec.Resonance {
			// LastAccessedAt is deliberately left untouched: it is the
			// decay clock (spec §4.2's ageDays is computed against it), and
			// decay itself is not an access.
			rec.Resonance = next
			if err := e.putRecord(ctx, rec); err != nil {
				return result, err
			}
			result.Decayed++
		}
	}

	return result, nil
}
