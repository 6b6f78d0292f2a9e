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
	"encoding/binary"
	"log/slog"
	"math"
	"sort"

	"github.com/agentdock/agentdock-core/errs"
	"github.com/agentdock/agentdock-core/storage"
)

// VectorMatch is one hit returned by a VectorClient query.
type VectorMatch struct {
	ID    string
	Score float64 // cosine similarity, higher is better
}

// VectorClient is the narrow contract a vector database adapter
// (storage/vectorstore's chromem/qdrant/pinecone backends) must satisfy to
// back VectorEngine. Namespaces scope the collection the same way
// storage.Options.Namespace scopes a KV key, so one physical vector
// database can serve every (userID, agentID) pair without cross-tenant
// bleed.
type VectorClient interface {
	Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error
	Query(ctx context.Context, namespace string, vector []float32, limit int) ([]VectorMatch, error)
	Delete(ctx context.Context, namespace, id string) error
}

// VectorEngine extends Engine with embedding storage and hybrid search. It
// is the implementation returned by a storage.Provider's AsVectorOps probe
// when that provider was constructed with a VectorClient and Embedder
// attached (spec §4.2's vector-capable variant).
type VectorEngine struct {
	*Engine
	client   VectorClient
	embedder Embedder
}

// NewVectorEngine wraps provider, client and embedder into a VectorOps
// implementation. client or embedder may be nil; HybridSearch degrades to
// the base Engine's pure-text Recall when the vector side is unavailable
// (spec §4.2 "Hybrid search... graceful fallback"), while SearchByVector
// and FindSimilar return a CapabilityMissing error without a client, and
// StoreWithEmbedding returns one when it has neither an embedder nor an
// embedding.
func NewVectorEngine(provider storage.Provider, client VectorClient, embedder Embedder, logger *slog.Logger) *VectorEngine {
	return &VectorEngine{
		Engine:   NewEngine(provider, logger),
		client:   client,
		embedder: embedder,
	}
}

func vectorNamespace(userID, agentID string) string {
	return "vec/" + userID + "/" + agentID
}

func embeddingKey(userID, memoryID string) string {
	return userID + "/" + memoryID
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

// StoreWithEmbedding stores the record via the base Engine and its
// embedding via both the raw embeddings: namespace (for GetEmbedding) and
// the VectorClient (for ANN search).
func (v *VectorEngine) StoreWithEmbedding(ctx context.Context, userID, agentID string, rec Record, embedding []float32) (string, error) {
	embedding, err := v.resolveEmbedding(ctx, embedding, rec.Content)
	if err != nil {
		return "", err
	}

	id, err := v.Store(ctx, userID, agentID, rec)
	if err != nil {
		return "", err
	}
	if err := v.UpdateEmbedding(ctx, userID, id, embedding); err != nil {
		return id, err
	}
	return id, nil
}

// resolveEmbedding returns embedding as-is when non-empty, otherwise falls
// back to computing one from text via the configured Embedder.
func (v *VectorEngine) resolveEmbedding(ctx context.Context, embedding []float32, text string) ([]float32, error) {
	if len(embedding) > 0 {
		return embedding, nil
	}
	if v.embedder == nil {
		return nil, errs.CapabilityMissing("VectorEngine.resolveEmbedding", errNoEmbedder)
	}
	computed, err := v.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errs.Storage("VectorEngine.resolveEmbedding", err)
	}
	return computed, nil
}

// GetEmbedding returns the raw embedding stored for a memory, if any.
func (v *VectorEngine) GetEmbedding(ctx context.Context, userID, memoryID string) ([]float32, bool, error) {
	raw, ok, err := v.Engine.provider.Get(ctx, embeddingKey(userID, memoryID), storage.Options{Namespace: "embeddings"})
	if err != nil {
		return nil, false, errs.Storage("VectorEngine.GetEmbedding", err)
	}
	if !ok {
		return nil, false, nil
	}
	return decodeVector(raw), true, nil
}

// UpdateEmbedding (re)writes a memory's embedding in both the raw store
// and the VectorClient's ANN index.
func (v *VectorEngine) UpdateEmbedding(ctx context.Context, userID, memoryID string, embedding []float32) error {
	rec, ok, err := v.GetByID(ctx, userID, memoryID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Storage("VectorEngine.UpdateEmbedding", errNotFound(memoryID))
	}

	if err := v.Engine.provider.Set(ctx, embeddingKey(userID, memoryID), encodeVector(embedding), storage.Options{Namespace: "embeddings"}); err != nil {
		return errs.Storage("VectorEngine.UpdateEmbedding", err)
	}

	rec.Embedding = &EmbeddingRef{ID: memoryID, Dimension: len(embedding)}
	if err := v.Engine.putRecord(ctx, rec); err != nil {
		return err
	}

	if v.client != nil {
		meta := map[string]any{"userId": userID, "agentId": rec.AgentID, "tier": string(rec.Tier)}
		if err := v.client.Upsert(ctx, vectorNamespace(userID, rec.AgentID), memoryID, embedding, meta); err != nil {
			return errs.Storage("VectorEngine.UpdateEmbedding", err)
		}
	}
	return nil
}

// SearchByVector performs ANN search and hydrates the matching records,
// filtering out hits below minScore.
func (v *VectorEngine) SearchByVector(ctx context.Context, userID, agentID string, embedding []float32, limit int, minScore float64) ([]Record, error) {
	if v.client == nil {
		return nil, errs.CapabilityMissing("VectorEngine.SearchByVector", errNoVectorClient)
	}
	matches, err := v.client.Query(ctx, vectorNamespace(userID, agentID), embedding, limit)
	if err != nil {
		return nil, errs.Storage("VectorEngine.SearchByVector", err)
	}

	var out []Record
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		rec, ok, err := v.GetByID(ctx, userID, m.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SearchByText is the vector engine's pure-text path, delegated straight
// to the base Engine's Recall so text-only callers pay no vector cost.
func (v *VectorEngine) SearchByText(ctx context.Context, userID, agentID, query string, limit int) ([]Record, error) {
	return v.Recall(ctx, userID, agentID, query, RecallFilter{Limit: limit})
}

// FindSimilar returns the memories whose embeddings are nearest memoryID's,
// excluding memoryID itself.
func (v *VectorEngine) FindSimilar(ctx context.Context, userID, agentID, memoryID string, limit int) ([]Record, error) {
	embedding, ok, err := v.GetEmbedding(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	matches, err := v.SearchByVector(ctx, userID, agentID, embedding, limit+1, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(matches))
	for _, rec := range matches {
		if rec.ID == memoryID {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// rrfConstant is the standard reciprocal-rank-fusion smoothing constant.
const rrfConstant = 60.0

// HybridSearch fuses vector and text recall via weighted reciprocal rank
// fusion (spec §4.2 "Hybrid search"). A failure on either side degrades to
// the other rather than failing the whole call; a failure on both falls
// back to the deterministic pure-text Recall with no query string filter
// applied beyond the query text itself.
func (v *VectorEngine) HybridSearch(ctx context.Context, userID, agentID, query string, embedding []float32, opts HybridOptions) ([]Record, error) {
	opts.setDefaults()

	var vectorHits, textHits []Record
	var vectorErr, textErr error

	if v.client == nil {
		vectorErr = errNoVectorClient
	} else if resolved, err := v.resolveEmbedding(ctx, embedding, query); err != nil {
		vectorErr = err
	} else {
		vectorHits, vectorErr = v.SearchByVector(ctx, userID, agentID, resolved, opts.Limit*2, opts.VectorThreshold)
	}
	textHits, textErr = v.SearchByText(ctx, userID, agentID, query, opts.Limit*2)

	if vectorErr != nil && textErr != nil {
		return v.Recall(ctx, userID, agentID, query, RecallFilter{Limit: opts.Limit})
	}

	type fused struct {
		rec   Record
		score float64
	}
	scores := make(map[string]*fused)

	addRanked := func(recs []Record, weight float64) {
		for rank, r := range recs {
			contribution := weight / (rrfConstant + float64(rank+1))
			if f, ok := scores[r.ID]; ok {
				f.score += contribution
			} else {
				scores[r.ID] = &fused{rec: r, score: contribution}
			}
		}
	}

	if vectorErr == nil {
		addRanked(vectorHits, opts.VectorWeight)
	}
	if textErr == nil {
		addRanked(textHits, opts.TextWeight)
	}

	out := make([]fused, 0, len(scores))
	for _, f := range scores {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].rec.CreatedAt.After(out[j].rec.CreatedAt)
	})

	limit := opts.Limit
	if limit > len(out) {
		limit = len(out)
	}
	result := make([]Record, limit)
	for i := 0; i < limit; i++ {
		result[i] = out[i].rec
	}
	return result, nil
}

type notFoundError string

func (e notFoundError) Error() string { return "memory not found: " + string(e) }

func errNotFound(id string) error { return notFoundError(id) }

type staticError string

func (e staticError) Error() string { return string(e) }

var errNoVectorClient = staticError("no vector client configured")
var errNoEmbedder = staticError("no embedder configured and no embedding supplied")
