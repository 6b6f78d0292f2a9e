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

// Package memstore implements an in-process storage.Provider backed by a
// guarded map. It is the default backend (storage.type = "memory") and the
// one used by the test suite, since it needs no external service. Setting
// storage.vector on a memory-backed config additionally wires it to one of
// storage/vectorstore's ANN clients, so the memory backend can serve as a
// lightweight vector-capable provider in development without standing up
// Qdrant or Pinecone.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage"
	"github.com/agentdock/agentdock-core/storage/vectorstore"
)

func init() {
	storage.RegisterBackend(config.BackendMemory, func(cfg config.StorageConfig) (storage.Provider, error) {
		p := New(cfg.Namespace)
		if cfg.Vector != config.VectorNone {
			client, err := vectorstore.New(cfg)
			if err != nil {
				return nil, err
			}
			p.vectorClient = client
		}
		return p, nil
	})
}

type entry struct {
	value     []byte
	expiresAt time.Time // zero means "no expiry"
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Provider is an in-process key/value + list store with lazy TTL expiry.
// Safe for concurrent use.
type Provider struct {
	defaultNamespace string

	mu    sync.RWMutex
	kv    map[string]entry
	lists map[string][][]byte

	stopSweep chan struct{}
	sweepOnce sync.Once

	vectorClient memory.VectorClient
	embedderMu   sync.RWMutex
	embedder     memory.Embedder
}

// New creates a Provider scoped to defaultNamespace.
func New(defaultNamespace string) *Provider {
	p := &Provider{
		defaultNamespace: defaultNamespace,
		kv:               make(map[string]entry),
		lists:            make(map[string][][]byte),
		stopSweep:        make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

func (p *Provider) Name() string { return "memory" }

func (p *Provider) ns(opts storage.Options) string {
	if opts.Namespace != "" {
		return opts.Namespace
	}
	return p.defaultNamespace
}

func (p *Provider) fullKey(key string, opts storage.Options) string {
	return p.ns(opts) + "/" + key
}

func expiryFor(opts storage.Options, now time.Time) time.Time {
	if opts.TTLSeconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(opts.TTLSeconds) * time.Second)
}

func (p *Provider) Get(_ context.Context, key string, opts storage.Options) ([]byte, bool, error) {
	now := storage.Now()
	fk := p.fullKey(key, opts)

	p.mu.RLock()
	e, ok := p.kv[fk]
	p.mu.RUnlock()
	if !ok || e.expired(now) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, opts storage.Options) error {
	fk := p.fullKey(key, opts)
	stored := make([]byte, len(value))
	copy(stored, value)

	p.mu.Lock()
	p.kv[fk] = entry{value: stored, expiresAt: expiryFor(opts, storage.Now())}
	p.mu.Unlock()
	return nil
}

func (p *Provider) Delete(_ context.Context, key string, opts storage.Options) (bool, error) {
	fk := p.fullKey(key, opts)

	p.mu.Lock()
	_, existed := p.kv[fk]
	delete(p.kv, fk)
	p.mu.Unlock()
	return existed, nil
}

func (p *Provider) Exists(ctx context.Context, key string, opts storage.Options) (bool, error) {
	_, ok, err := p.Get(ctx, key, opts)
	return ok, err
}

func (p *Provider) GetMany(ctx context.Context, keys []string, opts storage.Options) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := p.Get(ctx, k, opts); ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany applies sequentially but is visible atomically per key: no
// concurrent Get for a key in the batch can observe a partial write
// because each key's map entry is written under its own lock critical
// section, not a shared one spanning the whole batch.
func (p *Provider) SetMany(ctx context.Context, items map[string][]byte, opts storage.Options) error {
	for k, v := range items {
		if err := p.Set(ctx, k, v, opts); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) DeleteMany(ctx context.Context, keys []string, opts storage.Options) (int, error) {
	count := 0
	for _, k := range keys {
		if existed, _ := p.Delete(ctx, k, opts); existed {
			count++
		}
	}
	return count, nil
}

func (p *Provider) List(_ context.Context, prefix string, opts storage.Options) ([]string, error) {
	now := storage.Now()
	full := p.fullKey(prefix, opts)
	nsPrefix := p.ns(opts) + "/"

	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []string
	for k, e := range p.kv {
		if !strings.HasPrefix(k, full) || e.expired(now) {
			continue
		}
		out = append(out, strings.TrimPrefix(k, nsPrefix))
	}
	sort.Strings(out)
	return out, nil
}

func (p *Provider) GetList(_ context.Context, key string, start, end int, opts storage.Options) ([][]byte, bool, error) {
	fk := p.fullKey(key, opts)

	p.mu.RLock()
	vals, ok := p.lists[fk]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if end < 0 || end > len(vals) {
		end = len(vals)
	}
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	out := make([][]byte, end-start)
	copy(out, vals[start:end])
	return out, true, nil
}

func (p *Provider) SaveList(_ context.Context, key string, values [][]byte, opts storage.Options) error {
	fk := p.fullKey(key, opts)
	cp := make([][]byte, len(values))
	for i, v := range values {
		b := make([]byte, len(v))
		copy(b, v)
		cp[i] = b
	}

	p.mu.Lock()
	p.lists[fk] = cp
	p.mu.Unlock()
	return nil
}

func (p *Provider) DeleteList(_ context.Context, key string, opts storage.Options) (bool, error) {
	fk := p.fullKey(key, opts)

	p.mu.Lock()
	_, existed := p.lists[fk]
	delete(p.lists, fk)
	p.mu.Unlock()
	return existed, nil
}

func (p *Provider) Clear(_ context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k := range p.kv {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			delete(p.kv, k)
		}
	}
	for k := range p.lists {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			delete(p.lists, k)
		}
	}
	return nil
}

func (p *Provider) Destroy() error {
	p.sweepOnce.Do(func() { close(p.stopSweep) })
	return nil
}

// AsMemoryOps satisfies memory.Capable: every memstore Provider supports
// MemoryOps via the generic Engine built on its own KV/list primitives.
func (p *Provider) AsMemoryOps() (memory.Ops, bool) {
	return memory.NewEngine(p, nil), true
}

// SetEmbedder attaches the Embedder used to compute embeddings on demand
// (spec §4.2: concrete embedding SDKs are a caller concern). Safe to call
// before the provider serves any vector-capable requests; a nil embedder
// simply means callers must always supply pre-computed vectors.
func (p *Provider) SetEmbedder(e memory.Embedder) {
	p.embedderMu.Lock()
	p.embedder = e
	p.embedderMu.Unlock()
}

// AsVectorOps satisfies memory.VectorCapableProvider when the provider was
// constructed with storage.vector set to a non-empty backend.
func (p *Provider) AsVectorOps() (memory.VectorOps, bool) {
	if p.vectorClient == nil {
		return nil, false
	}
	p.embedderMu.RLock()
	embedder := p.embedder
	p.embedderMu.RUnlock()
	return memory.NewVectorEngine(p, p.vectorClient, embedder, nil), true
}

// sweepLoop purges expired keys on a bounded interval so expired rows
// don't accumulate forever between reads (spec §4.1: "periodic sweep
// acceptable; must be bounded").
func (p *Provider) sweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepExpired()
		}
	}
}

func (p *Provider) sweepExpired() {
	now := storage.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.kv {
		if e.expired(now) {
			delete(p.kv, k)
		}
	}
}
