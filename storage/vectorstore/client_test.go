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

package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/storage/vectorstore"
)

func TestNewWithVectorNoneReturnsNoClient(t *testing.T) {
	client, err := vectorstore.New(config.StorageConfig{Vector: config.VectorNone})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewWithUnknownBackendErrors(t *testing.T) {
	_, err := vectorstore.New(config.StorageConfig{Vector: "made-up"})
	assert.Error(t, err)
}

func TestNewWithQdrantRequiresConfig(t *testing.T) {
	_, err := vectorstore.New(config.StorageConfig{Vector: config.VectorQdrant})
	assert.Error(t, err)
}

func TestNewWithPineconeRequiresConfig(t *testing.T) {
	_, err := vectorstore.New(config.StorageConfig{Vector: config.VectorPinecone})
	assert.Error(t, err)
}

func TestChromemClientUpsertAndQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	client, err := vectorstore.New(config.StorageConfig{Vector: config.VectorChromem})
	require.NoError(t, err)
	require.NotNil(t, client)

	require.NoError(t, client.Upsert(ctx, "ns-1", "doc-1", []float32{1, 0, 0}, map[string]any{"k": "v"}))
	require.NoError(t, client.Upsert(ctx, "ns-1", "doc-2", []float32{0, 1, 0}, nil))

	matches, err := client.Query(ctx, "ns-1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "doc-1", matches[0].ID)

	require.NoError(t, client.Delete(ctx, "ns-1", "doc-1"))
	matches, err = client.Query(ctx, "ns-1", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "doc-1", m.ID)
	}
}

func TestChromemClientQueryOnEmptyCollectionIsEmpty(t *testing.T) {
	ctx := context.Background()
	client, err := vectorstore.New(config.StorageConfig{Vector: config.VectorChromem})
	require.NoError(t, err)

	matches, err := client.Query(ctx, "ns-empty", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}
