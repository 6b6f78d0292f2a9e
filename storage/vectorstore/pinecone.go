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

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
)

// pineconeClient implements memory.VectorClient against a managed Pinecone
// index. Unlike chromem/qdrant, Pinecone indexes cannot be created
// on-the-fly from a client SDK call, so namespace here maps to a Pinecone
// namespace *within* the single configured index rather than a distinct
// index per caller (spec §5: "Pinecone indexes are provisioned out of
// band; namespaces give per-tenant isolation within one").
type pineconeClient struct {
	client    *pinecone.Client
	indexName string
}

func newPineconeClient(cfg config.PineconeConfig) (*pineconeClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vectorstore/pinecone: api_key is required")
	}
	params := pinecone.NewClientParams{ApiKey: cfg.APIKey}
	if cfg.Host != "" {
		params.Host = cfg.Host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pinecone: new client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = "agentdock-memory"
	}
	return &pineconeClient{client: client, indexName: indexName}, nil
}

func (c *pineconeClient) indexConn(ctx context.Context, namespace string) (*pinecone.IndexConnection, error) {
	idx, err := c.client.DescribeIndex(ctx, c.indexName)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pinecone: describe index %s: %w", c.indexName, err)
	}
	conn, err := c.client.Index(pinecone.NewIndexConnParams{Host: idx.Host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pinecone: connect to index: %w", err)
	}
	return conn, nil
}

func (c *pineconeClient) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error {
	conn, err := c.indexConn(ctx, namespace)
	if err != nil {
		return err
	}
	defer conn.Close()

	var meta *pinecone.Metadata
	if len(metadata) > 0 {
		asAny := make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			asAny[k] = v
		}
		meta, err = structpb.NewStruct(asAny)
		if err != nil {
			return fmt.Errorf("vectorstore/pinecone: convert metadata: %w", err)
		}
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{Id: id, Values: vector, Metadata: meta}})
	if err != nil {
		return fmt.Errorf("vectorstore/pinecone: upsert: %w", err)
	}
	return nil
}

func (c *pineconeClient) Query(ctx context.Context, namespace string, vector []float32, limit int) ([]memory.VectorMatch, error) {
	conn, err := c.indexConn(ctx, namespace)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector: vector,
		TopK:   uint32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore/pinecone: query: %w", err)
	}

	out := make([]memory.VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m.Vector == nil {
			continue
		}
		out = append(out, memory.VectorMatch{ID: m.Vector.Id, Score: float64(m.Score)})
	}
	return out, nil
}

func (c *pineconeClient) Delete(ctx context.Context, namespace, id string) error {
	conn, err := c.indexConn(ctx, namespace)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("vectorstore/pinecone: delete %s: %w", id, err)
	}
	return nil
}

var _ memory.VectorClient = (*pineconeClient)(nil)
