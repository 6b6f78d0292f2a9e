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
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
)

// chromemClient implements memory.VectorClient with an embedded,
// zero-config chromem-go database. Collections map 1:1 to the namespace
// VectorEngine passes in (one per (userID, agentID) pair), created
// lazily on first use.
type chromemClient struct {
	db          *chromem.DB
	persistPath string
	compress    bool

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

func newChromemClient(cfg config.ChromemConfig) (*chromemClient, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("vectorstore/chromem: create persist dir: %w", err)
		}
		dbPath := cfg.PersistPath + "/vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}
		if _, err := os.Stat(dbPath); err == nil {
			loaded, loadErr := chromem.NewPersistentDB(dbPath, cfg.Compress)
			if loadErr != nil {
				slog.Warn("vectorstore/chromem: failed to load existing database, starting fresh", "path", dbPath, "error", loadErr)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &chromemClient{
		db:          db,
		persistPath: cfg.PersistPath,
		compress:    cfg.Compress,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// identityEmbed rejects calls: VectorEngine always supplies pre-computed
// vectors via its Embedder, so chromem-go's own embedding path must never
// fire.
func identityEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vectorstore/chromem: unexpected internal embedding call, vectors must be pre-computed")
}

func (c *chromemClient) getCollection(namespace string) (*chromem.Collection, error) {
	c.mu.RLock()
	if col, ok := c.collections[namespace]; ok {
		c.mu.RUnlock()
		return col, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[namespace]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection(namespace, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/chromem: get/create collection %q: %w", namespace, err)
	}
	c.collections[namespace] = col
	return col, nil
}

func (c *chromemClient) Upsert(ctx context.Context, namespace, id string, vector []float32, metadata map[string]any) error {
	col, err := c.getCollection(namespace)
	if err != nil {
		return err
	}

	strMeta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMeta[k] = fmt.Sprint(v)
	}

	doc := chromem.Document{ID: id, Metadata: strMeta, Embedding: vector}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("vectorstore/chromem: upsert: %w", err)
	}
	return c.persist()
}

func (c *chromemClient) Query(ctx context.Context, namespace string, vector []float32, limit int) ([]memory.VectorMatch, error) {
	col, err := c.getCollection(namespace)
	if err != nil {
		return nil, err
	}
	if limit > col.Count() {
		limit = col.Count()
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/chromem: query: %w", err)
	}

	out := make([]memory.VectorMatch, 0, len(results))
	for _, r := range results {
		out = append(out, memory.VectorMatch{ID: r.ID, Score: float64(r.Similarity)})
	}
	return out, nil
}

func (c *chromemClient) Delete(ctx context.Context, namespace, id string) error {
	col, err := c.getCollection(namespace)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("vectorstore/chromem: delete: %w", err)
	}
	return c.persist()
}

func (c *chromemClient) persist() error {
	if c.persistPath == "" {
		return nil
	}
	dbPath := c.persistPath + "/vectors.gob"
	if c.compress {
		dbPath += ".gz"
	}
	//nolint:staticcheck // Export is the only persistence API chromem-go exposes.
	if err := c.db.Export(dbPath, c.compress, ""); err != nil {
		return fmt.Errorf("vectorstore/chromem: persist: %w", err)
	}
	return nil
}

var _ memory.VectorClient = (*chromemClient)(nil)
