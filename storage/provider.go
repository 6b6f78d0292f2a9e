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

// Package storage defines the unified StorageProvider contract (spec §4.1):
// namespaced KV/list operations with optional TTL, plus capability-probed
// memory and vector sub-interfaces. Concrete backends live in the
// storage/memstore, storage/sqlstore, storage/redisstore and
// storage/vectorstore sub-packages.
package storage

import (
	"context"
	"time"
)

// Options is accepted by every StorageProvider operation.
type Options struct {
	// Namespace scopes the effective key; the provider prepends it.
	// Empty means "use the provider's configured default namespace".
	Namespace string

	// TTLSeconds sets an absolute expiry at now + TTLSeconds. Zero means
	// no expiry.
	TTLSeconds int64

	// Metadata is opaque, backend-specific bookkeeping (e.g. collection
	// hints for vector-capable providers).
	Metadata map[string]any
}

// Provider is the unified storage contract every backend implements.
//
// Expiry is lazy: backends without native TTL support must filter expired
// rows out of Get/GetMany/List at read time and purge them opportunistically.
// Batch operations are atomic per-batch where the backend supports
// transactions; elsewhere they apply sequentially but must never expose a
// half-written record for a key that has already been written.
type Provider interface {
	Get(ctx context.Context, key string, opts Options) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, opts Options) error
	Delete(ctx context.Context, key string, opts Options) (bool, error)
	Exists(ctx context.Context, key string, opts Options) (bool, error)

	GetMany(ctx context.Context, keys []string, opts Options) (map[string][]byte, error)
	SetMany(ctx context.Context, items map[string][]byte, opts Options) error
	DeleteMany(ctx context.Context, keys []string, opts Options) (int, error)

	List(ctx context.Context, prefix string, opts Options) ([]string, error)

	GetList(ctx context.Context, key string, start, end int, opts Options) ([][]byte, bool, error)
	SaveList(ctx context.Context, key string, values [][]byte, opts Options) error
	DeleteList(ctx context.Context, key string, opts Options) (bool, error)

	// Clear removes every key under prefix (all keys if prefix is empty).
	Clear(ctx context.Context, prefix string) error

	// Name identifies the backend implementation, e.g. "memory", "sqlite".
	Name() string

	// Destroy releases any resources (connections, background sweepers)
	// held by the provider. Called once per cached instance at shutdown.
	Destroy() error
}

// The optional memory and vector capability bundles (spec §4.1, §9's
// "capability-conditional methods" design note) are declared in package
// memory as probe interfaces (memory.Capable, memory.VectorCapableProvider) rather
// than here, so a Provider implementation can satisfy them structurally
// without this package importing memory and creating a cycle.

// nowFunc is overridable in tests that need deterministic expiry.
var nowFunc = time.Now

// Now returns the current time via the package clock, so lazy-expiry
// backends and tests can agree on "now" without wall-clock flakiness.
func Now() time.Time { return nowFunc() }
