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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

func TestCacheEntryExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	entry := cachestack.NewCacheEntry("v", now, time.Minute)

	require.False(t, entry.Expired(now))
	require.False(t, entry.Expired(now.Add(59*time.Second)))
	require.True(t, entry.Expired(now.Add(time.Minute)))
	require.True(t, entry.Expired(now.Add(2*time.Minute)))
}

func TestCacheEntryStaleDisabledByDefault(t *testing.T) {
	t.Parallel()

	now := time.Now()
	entry := cachestack.NewCacheEntry("v", now, time.Minute)

	_, ok := entry.StaleDate(cachestack.CacheSettings{TimeToLive: time.Minute})
	require.False(t, ok)
	require.False(t, entry.Stale(now.Add(90*time.Second), cachestack.CacheSettings{TimeToLive: time.Minute}))
}

func TestCacheEntryStaleBoundary(t *testing.T) {
	t.Parallel()

	now := time.Now()
	settings := cachestack.CacheSettings{TimeToLive: time.Minute, StaleAfter: 20 * time.Second}
	entry := cachestack.NewCacheEntry("v", now, settings.TimeToLive)

	require.False(t, entry.Stale(now.Add(39*time.Second), settings))
	require.True(t, entry.Stale(now.Add(41*time.Second), settings))
	require.False(t, entry.Expired(now.Add(41*time.Second)))
}

func TestCacheSettingsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, (cachestack.CacheSettings{TimeToLive: time.Minute}).Validate())
	require.NoError(t, (cachestack.CacheSettings{TimeToLive: time.Minute, StaleAfter: 30 * time.Second}).Validate())

	require.ErrorIs(t, (cachestack.CacheSettings{}).Validate(), cachestack.ErrInvalidArgument)
	require.ErrorIs(t, (cachestack.CacheSettings{TimeToLive: -time.Second}).Validate(), cachestack.ErrInvalidArgument)
	require.ErrorIs(t, (cachestack.CacheSettings{TimeToLive: time.Minute, StaleAfter: time.Minute}).Validate(), cachestack.ErrInvalidArgument)
	require.ErrorIs(t, (cachestack.CacheSettings{TimeToLive: time.Minute, StaleAfter: -time.Second}).Validate(), cachestack.ErrInvalidArgument)
}

func TestCacheUpdateTypeString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "AddEntry", cachestack.AddEntry.String())
	require.Equal(t, "AddOrUpdateEntry", cachestack.AddOrUpdateEntry.String())
}

func TestCacheEntryStatusString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Hit", cachestack.StatusHit.String())
	require.Equal(t, "Stale", cachestack.StatusStale.String())
	require.Equal(t, "Expired", cachestack.StatusExpired.String())
	require.Equal(t, "Miss", cachestack.StatusMiss.String())
}
