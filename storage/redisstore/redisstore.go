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

// Package redisstore implements storage.Provider over Redis, the one
// backend with native TTL support: expiry is pushed down to Redis's own
// key eviction instead of the read-time expiry filtering memstore and
// sqlstore do (memstore also sweeps expired entries periodically) (spec
// §4.1: "backends with native TTL support may delegate directly").
package redisstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/memory"
	"github.com/agentdock/agentdock-core/storage"
)

func init() {
	storage.RegisterBackend(config.BackendRedis, func(cfg config.StorageConfig) (storage.Provider, error) {
		return New(cfg.Addr, cfg.Namespace)
	})
}

// Provider is a Redis-backed storage.Provider. Keys are namespaced values
// (string SET/GET); lists use a dedicated key holding a Redis list so
// SaveList can atomically replace the whole sequence.
type Provider struct {
	client           *redis.Client
	defaultNamespace string
}

// New connects to addr and returns a Provider scoped to defaultNamespace.
func New(addr, defaultNamespace string) (*Provider, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}

	return &Provider{client: client, defaultNamespace: defaultNamespace}, nil
}

func (p *Provider) Name() string { return "redis" }

func (p *Provider) ns(opts storage.Options) string {
	if opts.Namespace != "" {
		return opts.Namespace
	}
	return p.defaultNamespace
}

func (p *Provider) fullKey(key string, opts storage.Options) string {
	return p.ns(opts) + ":" + key
}

func (p *Provider) listKey(key string, opts storage.Options) string {
	return p.ns(opts) + ":list:" + key
}

func (p *Provider) Get(ctx context.Context, key string, opts storage.Options) ([]byte, bool, error) {
	val, err := p.client.Get(ctx, p.fullKey(key, opts)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get: %w", err)
	}
	return val, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, opts storage.Options) error {
	var ttl time.Duration
	if opts.TTLSeconds > 0 {
		ttl = time.Duration(opts.TTLSeconds) * time.Second
	}
	if err := p.client.Set(ctx, p.fullKey(key, opts), value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (p *Provider) Delete(ctx context.Context, key string, opts storage.Options) (bool, error) {
	n, err := p.client.Del(ctx, p.fullKey(key, opts)).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: delete: %w", err)
	}
	return n > 0, nil
}

func (p *Provider) Exists(ctx context.Context, key string, opts storage.Options) (bool, error) {
	n, err := p.client.Exists(ctx, p.fullKey(key, opts)).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: exists: %w", err)
	}
	return n > 0, nil
}

func (p *Provider) GetMany(ctx context.Context, keys []string, opts storage.Options) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = p.fullKey(k, opts)
	}
	vals, err := p.client.MGet(ctx, fullKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get many: %w", err)
	}

	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[keys[i]] = []byte(s)
		}
	}
	return out, nil
}

// SetMany pipelines every write so the batch is a single round trip, atomic
// from the client's perspective (spec §4.1 batch semantics).
func (p *Provider) SetMany(ctx context.Context, items map[string][]byte, opts storage.Options) error {
	var ttl time.Duration
	if opts.TTLSeconds > 0 {
		ttl = time.Duration(opts.TTLSeconds) * time.Second
	}

	pipe := p.client.TxPipeline()
	for k, v := range items {
		pipe.Set(ctx, p.fullKey(k, opts), v, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: set many: %w", err)
	}
	return nil
}

func (p *Provider) DeleteMany(ctx context.Context, keys []string, opts storage.Options) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = p.fullKey(k, opts)
	}
	n, err := p.client.Del(ctx, fullKeys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redisstore: delete many: %w", err)
	}
	return int(n), nil
}

// List scans for keys under prefix using SCAN (not KEYS) so a large
// keyspace never blocks the server for the duration of the call.
func (p *Provider) List(ctx context.Context, prefix string, opts storage.Options) ([]string, error) {
	match := p.fullKey(prefix, opts) + "*"
	nsPrefix := p.ns(opts) + ":"

	var out []string
	iter := p.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), nsPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisstore: list: %w", err)
	}
	return out, nil
}

func (p *Provider) GetList(ctx context.Context, key string, start, end int, opts storage.Options) ([][]byte, bool, error) {
	fk := p.listKey(key, opts)
	n, err := p.client.Exists(ctx, fk).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get list: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	stop := end
	if stop < 0 {
		stop = -1
	} else {
		stop = end - 1 // LRANGE end is inclusive
	}
	vals, err := p.client.LRange(ctx, fk, int64(start), int64(stop)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: lrange: %w", err)
	}

	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, true, nil
}

// SaveList replaces the whole list atomically via a MULTI/EXEC
// transaction: delete then RPUSH every element.
func (p *Provider) SaveList(ctx context.Context, key string, values [][]byte, opts storage.Options) error {
	fk := p.listKey(key, opts)

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, fk)
		if len(values) > 0 {
			args := make([]interface{}, len(values))
			for i, v := range values {
				args[i] = v
			}
			pipe.RPush(ctx, fk, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: save list: %w", err)
	}
	return nil
}

func (p *Provider) DeleteList(ctx context.Context, key string, opts storage.Options) (bool, error) {
	n, err := p.client.Del(ctx, p.listKey(key, opts)).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: delete list: %w", err)
	}
	return n > 0, nil
}

func (p *Provider) Clear(ctx context.Context, prefix string) error {
	match := prefix + "*"
	if prefix == "" {
		match = "*"
	}
	iter := p.client.Scan(ctx, 0, match, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redisstore: clear: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redisstore: clear: %w", err)
	}
	return nil
}

func (p *Provider) Destroy() error {
	return p.client.Close()
}

// AsMemoryOps satisfies memory.Capable via the generic Engine.
func (p *Provider) AsMemoryOps() (memory.Ops, bool) {
	return memory.NewEngine(p, nil), true
}
