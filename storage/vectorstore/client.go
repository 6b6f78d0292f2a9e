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

// Package vectorstore adapts external vector databases to memory.VectorClient
// so MemoryOps.HybridSearch can run ANN queries regardless of which ANN
// backend storage.type = "..." selected (spec §4.2, §5 Domain Stack).
package vectorstore

import (
	"fmt"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
)

// New builds the memory.VectorClient selected by cfg.Vector. A VectorNone
// config returns (nil, nil): the caller's storage.Provider then simply
// never offers AsVectorOps.
func New(cfg config.StorageConfig) (memory.VectorClient, error) {
	switch cfg.Vector {
	case config.VectorNone:
		return nil, nil
	case config.VectorChromem:
		chromemCfg := config.ChromemConfig{}
		if cfg.Chromem != nil {
			chromemCfg = *cfg.Chromem
		}
		return newChromemClient(chromemCfg)
	case config.VectorQdrant:
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("vectorstore: qdrant configuration is required")
		}
		return newQdrantClient(*cfg.Qdrant)
	case config.VectorPinecone:
		if cfg.Pinecone == nil {
			return nil, fmt.Errorf("vectorstore: pinecone configuration is required")
		}
		return newPineconeClient(*cfg.Pinecone)
	default:
		return nil, fmt.Errorf("vectorstore: unknown vector backend %q", cfg.Vector)
	}
}
