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

// Package extraction implements the ExtractionOrchestrator (spec §4.7):
// buffered, sampled, cost-bounded conversion of raw messages into memory
// records.
package extraction

import (
	"context"
	"time"

	"github.com/agentdock/agentdock-core/memory"
)

// Message is one raw inbound conversation message.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
}

// Extractor turns a surviving batch of messages into memory records.
// Extractors run in the configured order; the first to return a
// non-empty result short-circuits the rest (spec §4.7).
type Extractor interface {
	Name() string
	Extract(ctx context.Context, userID, agentID string, messages []Message) ([]memory.Record, error)
}

// Metrics summarizes one batch firing, whether or not it survived
// sampling.
type Metrics struct {
	UserID           string
	AgentID          string
	MessageCount     int
	Sampled          bool
	ExtractorUsed    string
	MemoriesProduced int
	Duration         time.Duration
	FiredAt          time.Time
}
