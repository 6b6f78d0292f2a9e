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

// Package recall implements RecallService (spec §4.6): cross-tier
// fan-out over MemoryOps, re-scored under configured hybrid weights and
// optionally expanded through the connection graph.
package recall

import "time"

// Request is one cross-tier recall query (spec §4.6 inputs).
type Request struct {
	UserID  string
	AgentID string
	Query   string

	// Embedding, when supplied, lets tier queries prefer HybridSearch over
	// plain text Recall on vector-capable providers.
	Embedding []float32

	Tiers        []string // memory.Tier values; empty means all four
	Limit        int
	MinRelevance float64

	After, Before time.Time

	IncludeRelated bool
}

// Result is one recalled memory plus its fused relevance score and,
// when requested, the memories connected to it.
type Result struct {
	ID          string
	Content     string
	Tier        string
	Score       float64
	RelatedIDs  []string
}
