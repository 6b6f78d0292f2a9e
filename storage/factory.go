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

package storage

import (
	"fmt"

	"github.com/agentdock/agentdock-core/config"
	"github.com/agentdock/agentdock-core/registry"
)

// Constructor builds a Provider from a StorageConfig. Backend packages
// register their constructor via RegisterBackend at package init.
type Constructor func(cfg config.StorageConfig) (Provider, error)

var constructors = registry.NewBaseRegistry[Constructor]()

// RegisterBackend associates a BackendType tag with a constructor. Called
// from the init() of storage/memstore, storage/sqlstore and
// storage/redisstore so importing a backend package for side effects is
// enough to make it available to Factory.
func RegisterBackend(backendType config.BackendType, ctor Constructor) {
	if err := constructors.Register(string(backendType), ctor); err != nil {
		// Re-registration under the same process is a programming error
		// (duplicate import or duplicate init), not a runtime condition.
		panic(fmt.Sprintf("storage: %v", err))
	}
}

// Factory resolves (type, namespace) to a cached Provider instance. Two
// requests for the same (type, namespace) return the same instance for the
// life of the process (spec §4.1). Shutdown tears every cached instance
// down via Destroy.
type Factory struct {
	cache *registry.BaseRegistry[Provider]
}

// NewFactory creates an empty factory. Keep one canonical Factory per
// process, passed explicitly to the components that need it — the
// factory itself is the only thing that is a singleton by convention,
// not by language mechanism (spec §9).
func NewFactory() *Factory {
	return &Factory{cache: registry.NewBaseRegistry[Provider]()}
}

func cacheKey(cfg config.StorageConfig) string {
	return string(cfg.Type) + "::" + cfg.Namespace
}

// Get resolves cfg to a Provider, constructing and caching it on first use.
func (f *Factory) Get(cfg config.StorageConfig) (Provider, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage factory: %w", err)
	}

	ctor, ok := constructors.Get(string(cfg.Type))
	if !ok {
		return nil, fmt.Errorf("storage factory: no backend registered for type %q (forgot a blank import?)", cfg.Type)
	}

	return f.cache.GetOrCreate(cacheKey(cfg), func() (Provider, error) {
		return ctor(cfg)
	})
}

// Shutdown calls Destroy on every cached provider instance and clears the
// cache. Safe to call once at process shutdown.
func (f *Factory) Shutdown() error {
	var firstErr error
	f.cache.Each(func(_ string, p Provider) {
		if err := p.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	f.cache.Clear()
	return firstErr
}
