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

package cachestack_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

func TestKeyLockTableSingleHolder(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()

	require.True(t, table.TryAcquire("k"))
	require.False(t, table.TryAcquire("k"))
	require.Equal(t, 1, table.Len())
}

func TestKeyLockTableIndependentKeys(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()

	require.True(t, table.TryAcquire("a"))
	require.True(t, table.TryAcquire("b"))
	require.Equal(t, 2, table.Len())
}

func TestKeyLockTableWaitReceivesResult(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()

	require.True(t, table.TryAcquire("k"))

	done := make(chan struct{})

	var entry cachestack.CacheEntry[string]

	var waitErr error

	go func() {
		defer close(done)

		e, err, waited := table.Wait(context.Background(), "k")
		require.True(t, waited)

		entry = e
		waitErr = err
	}()

	time.Sleep(10 * time.Millisecond)

	table.Release("k", cachestack.NewCacheEntry("value", time.Now(), time.Minute), nil)

	<-done

	require.NoError(t, waitErr)
	require.Equal(t, "value", entry.Value)
	require.Equal(t, 0, table.Len())
}

func TestKeyLockTableWaitReceivesError(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()
	require.True(t, table.TryAcquire("k"))

	sentinel := errors.New("refresh failed")

	done := make(chan struct{})

	var waitErr error

	go func() {
		defer close(done)

		_, err, waited := table.Wait(context.Background(), "k")
		require.True(t, waited)

		waitErr = err
	}()

	time.Sleep(10 * time.Millisecond)
	table.Release("k", cachestack.CacheEntry[string]{}, sentinel)
	<-done

	require.ErrorIs(t, waitErr, sentinel)
}

func TestKeyLockTableWaitAfterReleaseDoesNotBlock(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()

	require.True(t, table.TryAcquire("k"))
	table.Release("k", cachestack.NewCacheEntry("value", time.Now(), time.Minute), nil)

	_, _, waited := table.Wait(context.Background(), "k")
	require.False(t, waited)
}

func TestKeyLockTableWaitRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()
	require.True(t, table.TryAcquire("k"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err, waited := table.Wait(ctx, "k")
	require.True(t, waited)
	require.ErrorIs(t, err, context.Canceled)
}

func TestKeyLockTableStrayReleaseIsNoop(t *testing.T) {
	t.Parallel()

	table := cachestack.NewKeyLockTable[string]()

	require.NotPanics(t, func() {
		table.Release("never-acquired", cachestack.CacheEntry[string]{}, nil)
	})
	require.Equal(t, 0, table.Len())
}
