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

import "context"

// Ops is the per-tier CRUD + recall + decay + connection-graph contract
// exposed by storage backends capable of memory operations (spec §4.2).
type Ops interface {
	Store(ctx context.Context, userID, agentID string, rec Record) (string, error)
	Recall(ctx context.Context, userID, agentID, query string, filter RecallFilter) ([]Record, error)
	Update(ctx context.Context, userID, agentID, id string, partial Partial) error
	Delete(ctx context.Context, userID, agentID, id string) error
	GetByID(ctx context.Context, userID, id string) (Record, bool, error)
	GetStats(ctx context.Context, userID, agentID string) (Stats, error)
	ApplyDecay(ctx context.Context, userID, agentID string, rules DecayRules) (DecayResult, error)

	CreateConnections(ctx context.Context, userID string, conns []Connection) error
	FindConnected(ctx context.Context, userID, memoryID string, depth int, minStrength float64) (ConnectionResult, error)
}

// Capable is the capability probe a storage.Provider implements when it
// supports MemoryOps (spec §9's "capability-conditional methods" reframed
// as a probe method rather than a nullable method table).
type Capable interface {
	AsMemoryOps() (Ops, bool)
}

// VectorOps extends Ops with embedding storage and similarity search
// (spec §4.2's vector-capable variant).
type VectorOps interface {
	Ops

	StoreWithEmbedding(ctx context.Context, userID, agentID string, rec Record, embedding []float32) (string, error)
	SearchByVector(ctx context.Context, userID, agentID string, embedding []float32, limit int, minScore float64) ([]Record, error)
	SearchByText(ctx context.Context, userID, agentID, query string, limit int) ([]Record, error)
	HybridSearch(ctx context.Context, userID, agentID, query string, embedding []float32, opts HybridOptions) ([]Record, error)
	FindSimilar(ctx context.Context, userID, agentID, memoryID string, limit int) ([]Record, error)
	GetEmbedding(ctx context.Context, userID, memoryID string) ([]float32, bool, error)
	UpdateEmbedding(ctx context.Context, userID, memoryID string, embedding []float32) error
}

// VectorCapableProvider is the capability probe for the vector-capable
// variant.
type VectorCapableProvider interface {
	AsVectorOps() (VectorOps, bool)
}

// HybridOptions configures HybridSearch's reciprocal rank fusion
// (spec §4.2 "Hybrid search").
type HybridOptions struct {
	Limit           int
	VectorThreshold float64 // min cosine similarity, i.e. max distance = 1-threshold
	VectorWeight    float64 // default 0.7
	TextWeight      float64 // default 0.3
}

func (o *HybridOptions) setDefaults() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.VectorWeight == 0 && o.TextWeight == 0 {
		o.VectorWeight = 0.7
		o.TextWeight = 0.3
	}
}

// Embedder is the external collaborator that turns text into a vector.
// Concrete embedding SDKs are out of scope for the core (spec §1); callers
// supply an Embedder implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
