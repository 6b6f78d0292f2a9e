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

package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdock/agentdock-core/storage"
	"github.com/agentdock/agentdock-core/storage/memstore"
)

func newProvider(t *testing.T) *memstore.Provider {
	t.Helper()
	p := memstore.New("test")
	t.Cleanup(func() { require.NoError(t, p.Destroy()) })
	return p
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	_, ok, err := p.Get(ctx, "k1", storage.Options{})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, "k1", []byte("v1"), storage.Options{}))
	v, ok, err := p.Get(ctx, "k1", storage.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))

	existed, err := p.Delete(ctx, "k1", storage.Options{})
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok, err = p.Get(ctx, "k1", storage.Options{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLExpiryIsLazy(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	require.NoError(t, p.Set(ctx, "ephemeral", []byte("v"), storage.Options{TTLSeconds: 1}))
	_, ok, err := p.Get(ctx, "ephemeral", storage.Options{})
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(1100 * time.Millisecond)
	_, ok, err = p.Get(ctx, "ephemeral", storage.Options{})
	require.NoError(t, err)
	assert.False(t, ok, "expired key must not be returned even before the sweeper runs")
}

func TestNamespaceIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	require.NoError(t, p.Set(ctx, "shared", []byte("a"), storage.Options{Namespace: "ns-a"}))
	require.NoError(t, p.Set(ctx, "shared", []byte("b"), storage.Options{Namespace: "ns-b"}))

	va, _, err := p.Get(ctx, "shared", storage.Options{Namespace: "ns-a"})
	require.NoError(t, err)
	vb, _, err := p.Get(ctx, "shared", storage.Options{Namespace: "ns-b"})
	require.NoError(t, err)

	assert.Equal(t, "a", string(va))
	assert.Equal(t, "b", string(vb))
}

func TestGetManySetManyDeleteMany(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	require.NoError(t, p.SetMany(ctx, map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")}, storage.Options{}))

	got, err := p.GetMany(ctx, []string{"k1", "k2", "k3"}, storage.Options{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "v1", string(got["k1"]))

	n, err := p.DeleteMany(ctx, []string{"k1", "k3"}, storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListReturnsSortedPrefixMatches(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	require.NoError(t, p.Set(ctx, "user/b", []byte("1"), storage.Options{}))
	require.NoError(t, p.Set(ctx, "user/a", []byte("1"), storage.Options{}))
	require.NoError(t, p.Set(ctx, "other/c", []byte("1"), storage.Options{}))

	keys, err := p.List(ctx, "user/", storage.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"user/a", "user/b"}, keys)
}

func TestListOperations(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	values := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	require.NoError(t, p.SaveList(ctx, "seq", values, storage.Options{}))

	got, ok, err := p.GetList(ctx, "seq", 0, -1, storage.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 3)

	sliced, ok, err := p.GetList(ctx, "seq", 1, 2, storage.Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, sliced, 1)
	assert.Equal(t, "two", string(sliced[0]))

	existed, err := p.DeleteList(ctx, "seq", storage.Options{})
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestClearRemovesAllMatchingPrefix(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	require.NoError(t, p.Set(ctx, "test/a", []byte("1"), storage.Options{}))
	require.NoError(t, p.Set(ctx, "test/b", []byte("1"), storage.Options{}))
	require.NoError(t, p.SaveList(ctx, "test/c", [][]byte{[]byte("x")}, storage.Options{}))

	require.NoError(t, p.Clear(ctx, ""))

	keys, err := p.List(ctx, "", storage.Options{})
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestAsMemoryOpsIsAlwaysSupported(t *testing.T) {
	p := newProvider(t)
	ops, ok := p.AsMemoryOps()
	require.True(t, ok)
	assert.NotNil(t, ops)
}

func TestAsVectorOpsRequiresConfiguredVectorClient(t *testing.T) {
	p := newProvider(t)
	_, ok := p.AsVectorOps()
	assert.False(t, ok, "a memstore.Provider built via New has no vector client wired")
}
