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

package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
	"github.com/nscale-labs/cachestack/pkg/cachestack/layers/file"
)

func TestFileLayerSetGet(t *testing.T) {
	t.Parallel()

	layer, err := file.New[string](t.TempDir())
	require.NoError(t, err)

	entry := cachestack.NewCacheEntry("v", time.Now(), time.Minute)
	require.NoError(t, layer.Set(context.Background(), "k", entry))

	got, ok, err := layer.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got.Value)
	require.WithinDuration(t, entry.Expiry, got.Expiry, time.Millisecond)
}

func TestFileLayerGetMiss(t *testing.T) {
	t.Parallel()

	layer, err := file.New[string](t.TempDir())
	require.NoError(t, err)

	_, ok, err := layer.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileLayerEvict(t *testing.T) {
	t.Parallel()

	layer, err := file.New[string](t.TempDir())
	require.NoError(t, err)

	require.NoError(t, layer.Set(context.Background(), "k", cachestack.NewCacheEntry("v", time.Now(), time.Minute)))
	require.NoError(t, layer.Evict(context.Background(), "k"))

	_, ok, err := layer.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileLayerFlush(t *testing.T) {
	t.Parallel()

	layer, err := file.New[string](t.TempDir())
	require.NoError(t, err)

	require.NoError(t, layer.Set(context.Background(), "a", cachestack.NewCacheEntry("1", time.Now(), time.Minute)))
	require.NoError(t, layer.Set(context.Background(), "b", cachestack.NewCacheEntry("2", time.Now(), time.Minute)))

	require.NoError(t, layer.Flush(context.Background()))

	for _, key := range []string{"a", "b"} {
		_, ok, err := layer.Get(context.Background(), key)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestFileLayerCleanupRemovesExpiredOnly(t *testing.T) {
	t.Parallel()

	layer, err := file.New[string](t.TempDir())
	require.NoError(t, err)

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

func TestFileLayerPersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := file.New[string](dir)
	require.NoError(t, err)

	require.NoError(t, first.Set(context.Background(), "k", cachestack.NewCacheEntry("v", time.Now(), time.Minute)))

	second, err := file.New[string](dir)
	require.NoError(t, err)

	got, ok, err := second.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got.Value)
}

func TestFileLayerNewCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir() + "/sub"

	layer, err := file.New[string](dir)
	require.NoError(t, err)
	require.True(t, layer.IsAvailable(context.Background(), "k"))

	require.NoError(t, layer.Flush(context.Background()))
}
