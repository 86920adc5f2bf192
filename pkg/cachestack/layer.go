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

package cachestack

import "context"

// CacheLayer is the external contract a storage backend implements. Index 0
// in a Stack's layer list is expected to be the fastest/smallest; index N-1
// the slowest/largest. The core never assumes anything about what backs a
// layer beyond this interface.
//
// All operations may suspend and may fail. A failure from Get or
// IsAvailable on a non-highest layer during a read is treated by the Stack
// as "unavailable for this key" and the probe falls through to the next
// layer. Failures during writes propagate.
type CacheLayer[T any] interface {
	// Get returns the entry stored under key, or ok==false if absent.
	// It never filters by expiry -- that is the caller's responsibility.
	Get(ctx context.Context, key string) (entry CacheEntry[T], ok bool, err error)
	// Set stores entry under key, replacing any prior value.
	Set(ctx context.Context, key string, entry CacheEntry[T]) error
	// Evict removes key, if present. Evicting an absent key is a no-op.
	Evict(ctx context.Context, key string) error
	// Flush empties the layer entirely.
	Flush(ctx context.Context) error
	// Cleanup opportunistically removes expired entries. Implementations
	// may treat this as a no-op if they have no notion of background
	// sweeping.
	Cleanup(ctx context.Context) error
	// IsAvailable is a fast health/partition check for key. A layer that
	// can't reach its backing store (e.g. a network partition) reports
	// false rather than blocking or erroring.
	IsAvailable(ctx context.Context, key string) bool
}

// Teardownable is implemented by layers that hold resources (file handles,
// connections, background goroutines) needing explicit release. Stack.Close
// calls Teardown on every layer that implements it.
type Teardownable interface {
	Teardown(ctx context.Context) error
}
