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

package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
)

// qdrantClient implements memory.VectorClient against a Qdrant server.
// Collections are created lazily, sized to whatever vector dimension the
// first Upsert for that namespace carries.
type qdrantClient struct {
	client *qdrant.Client

	mu       sync.Mutex
	ensured  map[string]bool
}

func newQdrantClient(cfg config.QdrantConfig) (*qdrantClient, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore/qdrant: connect to %s:%d: %w", host, port, err)
	}

	return &qdrantClient{client: client, ensured: make(map[string]bool)}, nil
}

func (c *qdrantClient) ensureCollection(ctx context.Context, namespace string, dim int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ensured[namespace] {
		return nil
	}

	exists, err := c.client.CollectionExists(ctx, namespace)
	if err != nil {
		return fmt.Errorf("vectorstore/qdrant: check collection: %w", err)
	}
	if !exists {
		err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: namespace,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("vectorstore/qdrant: create collection: %w", err)
		}
	}
	c.ensured[namespace] = true
	return nil
}

func (c *qdrantClient) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error {
	if err := c.ensureCollection(ctx, namespace, len(vector)); err != nil {
		return err
	}

	payload := make(map[string]*qdrant.Value, len(metadata))
	for k, v := range metadata {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return fmt.Errorf("vectorstore/qdrant: convert metadata %q: %w", k, err)
		}
		payload[k] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("vectorstore/qdrant: upsert: %w", err)
	}
	return nil
}

func (c *qdrantClient) Query(ctx context.Context, namespace string, vector []float32, limit int) ([]memory.VectorMatch, error) {
	points := c.client.GetPointsClient()
	result, err := points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: namespace,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		if strings.Contains(err.Error(), "doesn't exist") || strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("vectorstore/qdrant: search: %w", err)
	}

	out := make([]memory.VectorMatch, 0, len(result.Result))
	for _, p := range result.Result {
		var id string
		if p.Id != nil {
			switch v := p.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = v.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", v.Num)
			}
		}
		out = append(out, memory.VectorMatch{ID: id, Score: float64(p.Score)})
	}
	return out, nil
}

func (c *qdrantClient) Delete(ctx context.Context, namespace, id string) error {
	_, err := c.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: namespace,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore/qdrant: delete %s: %w", id, err)
	}
	return nil
}

var _ memory.VectorClient = (*qdrantClient)(nil)
