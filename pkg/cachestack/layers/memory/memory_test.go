/*
Copyright 2026 Nscale Labs.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
	"github.com/nscale-labs/cachestack/pkg/cachestack/layers/memory"
)

func TestMemoryLayerSetGet(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()

	now := time.Now()
	entry := cachestack.NewCacheEntry("v", now, time.Minute)

	require.NoError(t, layer.Set(context.Background(), "k", entry))

	got, ok, err := layer.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got.Value)
	require.Equal(t, 1, layer.Len())
}

func TestMemoryLayerGetMiss(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()

	_, ok, err := layer.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryLayerEvict(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()

	require.NoError(t, layer.Set(context.Background(), "k", cachestack.NewCacheEntry("v", time.Now(), time.Minute)))
	require.NoError(t, layer.Evict(context.Background(), "k"))

	_, ok, err := layer.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryLayerEvictAbsentIsNoop(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()

	require.NoError(t, layer.Evict(context.Background(), "never-set"))
}

func TestMemoryLayerFlush(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()

	require.NoError(t, layer.Set(context.Background(), "a", cachestack.NewCacheEntry("1", time.Now(), time.Minute)))
	require.NoError(t, layer.Set(context.Background(), "b", cachestack.NewCacheEntry("2", time.Now(), time.Minute)))
	require.Equal(t, 2, layer.Len())

	require.NoError(t, layer.Flush(context.Background()))
	require.Equal(t, 0, layer.Len())
}

func TestMemoryLayerCleanupRemovesExpiredOnly(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()

	now := time.Now()

	require.NoError(t, layer.Set(context.Background(), "expired", cachestack.NewCacheEntry("1", now.Add(-time.Hour), time.Minute)))
	require.NoError(t, layer.Set(context.Background(), "fresh", cachestack.NewCacheEntry("2", now, time.Hour)))

	require.NoError(t, layer.Cleanup(context.Background()))

	_, ok, err := layer.Get(context.Background(), "expired")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = layer.Get(context.Background(), "fresh")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLayerIsAvailableAlwaysTrue(t *testing.T) {
	t.Parallel()

	layer := memory.New[string]()
	require.True(t, layer.IsAvailable(context.Background(), "anything"))
}

func TestMemoryLayerGetDoesNotAliasStoredValue(t *testing.T) {
	t.Parallel()

	type payload struct {
		Items []string
	}

	layer := memory.New[*payload]()

	original := &payload{Items: []string{"a"}}
	require.NoError(t, layer.Set(context.Background(), "k", cachestack.NewCacheEntry(original, time.Now(), time.Minute)))

	got, ok, err := layer.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	got.Value.Items[0] = "mutated"

	storedAgain, ok, err := layer.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", storedAgain.Value.Items[0])
}
