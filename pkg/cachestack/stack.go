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

// Package cachestack implements a multi-layer caching engine: a Stack that
// fronts an ordered list of CacheLayer storage backends (fastest/smallest
// first) behind a single get-or-compute protocol with stale-while-
// revalidate, single-flight deduplication, and automatic back-population
// between layers.
//
// The package's value is entirely in this coordination core -- concrete
// storage backends, value serialization, and distributed coordination are
// pluggable collaborators supplied by the caller (see the layers and
// extensions subpackages for reference implementations).
package cachestack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Stack orchestrates layered reads, writes, back-population and refresh for
// a single value type T. Construct one Stack per distinct T -- use several
// Stacks if a process caches several unrelated value types.
type Stack[T any] struct {
	layers     []CacheLayer[T]
	extensions *ExtensionContainer[T]
	clock      Clock
	keyLock    *KeyLockTable[T]

	disposed atomic.Bool
	closeMu  sync.Mutex
}

// New constructs a Stack. At least one layer is required. extensions may be
// nil or empty.
func New[T any](layers []CacheLayer[T], extensions *ExtensionContainer[T], clock Clock) (*Stack[T], error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: at least one cache layer is required", ErrInvalidArgument)
	}

	if extensions == nil {
		var err error

		extensions, err = NewExtensionContainer[T]()
		if err != nil {
			return nil, err
		}
	}

	if clock == nil {
		clock = NewClock()
	}

	stack := &Stack[T]{
		layers:     layers,
		extensions: extensions,
		clock:      clock,
		keyLock:    NewKeyLockTable[T](),
	}

	extensions.bind(stack)

	return stack, nil
}

// Layers returns the stack's ordered, read-only layer list.
func (s *Stack[T]) Layers() []CacheLayer[T] {
	out := make([]CacheLayer[T], len(s.layers))
	copy(out, s.layers)

	return out
}

// Extensions returns the stack's extension container.
func (s *Stack[T]) Extensions() *ExtensionContainer[T] {
	return s.extensions
}

func (s *Stack[T]) checkKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key must not be empty", ErrInvalidArgument)
	}

	return nil
}

func (s *Stack[T]) checkNotDisposed() error {
	if s.disposed.Load() {
		return ErrInvalidState
	}

	return nil
}

// probe walks the layers top-to-bottom and returns the first available hit,
// per spec.md §4.5. It never filters by expiry. A layer that reports itself
// unavailable, or whose Get returns an error, is treated as unavailable for
// this key -- the probe continues rather than aborting, and no layer error
// is returned to the caller.
func (s *Stack[T]) probe(ctx context.Context, key string) (entry CacheEntry[T], layerIndex int, found bool, err error) {
	for i, layer := range s.layers {
		if !layer.IsAvailable(ctx, key) {
			continue
		}

		e, ok, err := layer.Get(ctx, key)
		if err != nil {
			// Treated as "unavailable for this key" at every layer,
			// including the top one: classifying a top-layer fault as
			// a miss would trigger a synchronous refresh from every
			// caller during an outage (spec.md §9 thundering-herd note).
			continue
		}

		if !ok {
			continue
		}

		return e, i, true, nil
	}

	return CacheEntry[T]{}, 0, false, nil
}

// Get is the raw read primitive (spec.md §4.5): the first available hit,
// top-to-bottom, with no freshness filtering. It is a diagnostic/
// administrative primitive -- freshness policy lives in GetOrSet.
func (s *Stack[T]) Get(ctx context.Context, key string) (CacheEntry[T], bool, error) {
	if err := s.checkNotDisposed(); err != nil {
		return CacheEntry[T]{}, false, err
	}

	if err := s.checkKey(key); err != nil {
		return CacheEntry[T]{}, false, err
	}

	entry, _, found, err := s.probe(ctx, key)

	return entry, found, err
}

// Set writes value to every layer in order and fires OnUpdate. It is not
// gated by the key lock -- a caller-initiated overwrite is authoritative
// and, per spec.md §9, is allowed to interleave with an in-flight refresh;
// the last writer to each layer wins per-layer.
func (s *Stack[T]) Set(ctx context.Context, key string, value T, settings CacheSettings) (CacheEntry[T], error) {
	if err := s.checkNotDisposed(); err != nil {
		return CacheEntry[T]{}, err
	}

	if err := s.checkKey(key); err != nil {
		return CacheEntry[T]{}, err
	}

	if err := settings.Validate(); err != nil {
		return CacheEntry[T]{}, err
	}

	entry := NewCacheEntry(value, s.clock.Now(), settings.TimeToLive)

	if err := s.writeThrough(ctx, key, entry); err != nil {
		return CacheEntry[T]{}, err
	}

	if err := s.extensions.onUpdate(ctx, key, entry.Expiry, AddOrUpdateEntry); err != nil {
		return entry, err
	}

	return entry, nil
}

// SetEntry writes a caller-constructed entry directly, bypassing TTL
// computation. Used by callers migrating entries between stacks or
// restoring from a snapshot.
func (s *Stack[T]) SetEntry(ctx context.Context, key string, entry CacheEntry[T]) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}

	if err := s.checkKey(key); err != nil {
		return err
	}

	if err := s.writeThrough(ctx, key, entry); err != nil {
		return err
	}

	return s.extensions.onUpdate(ctx, key, entry.Expiry, AddOrUpdateEntry)
}

// writeThrough writes entry to every layer, strictly top-to-bottom.
// Administrative/refresh writes do not continue past the first failure --
// it propagates and partial writes are not rolled back (spec.md §7).
func (s *Stack[T]) writeThrough(ctx context.Context, key string, entry CacheEntry[T]) error {
	for i, layer := range s.layers {
		if err := layer.Set(ctx, key, entry); err != nil {
			return newLayerError(i, "set", err)
		}
	}

	return nil
}

// Evict removes key from every layer in order and fires OnEviction.
func (s *Stack[T]) Evict(ctx context.Context, key string) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}

	if err := s.checkKey(key); err != nil {
		return err
	}

	for i, layer := range s.layers {
		if err := layer.Evict(ctx, key); err != nil {
			return newLayerError(i, "evict", err)
		}
	}

	return s.extensions.onEviction(ctx, key)
}

// Flush empties every layer and fires OnFlush.
func (s *Stack[T]) Flush(ctx context.Context) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}

	for i, layer := range s.layers {
		if err := layer.Flush(ctx); err != nil {
			return newLayerError(i, "flush", err)
		}
	}

	return s.extensions.onFlush(ctx)
}

// Cleanup asks every layer to opportunistically remove expired entries.
func (s *Stack[T]) Cleanup(ctx context.Context) error {
	if err := s.checkNotDisposed(); err != nil {
		return err
	}

	for i, layer := range s.layers {
		if err := layer.Cleanup(ctx); err != nil {
			return newLayerError(i, "cleanup", err)
		}
	}

	return nil
}

// Close tears down every layer that implements Teardownable. Extensions
// are not torn down: the extension container has no teardown step.
// Idempotent: a second call is a no-op.
func (s *Stack[T]) Close(ctx context.Context) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.disposed.Swap(true) {
		return nil
	}

	for i, layer := range s.layers {
		teardownable, ok := layer.(Teardownable)
		if !ok {
			continue
		}

		if err := teardownable.Teardown(ctx); err != nil {
			return newLayerError(i, "teardown", err)
		}
	}

	return nil
}

// GetOrSet implements spec.md §4.6: the full read/refresh state machine.
// now is sampled once at entry so every decision in this call is made
// against a single instant.
func (s *Stack[T]) GetOrSet(ctx context.Context, key string, factory RefreshFunc[T], settings CacheSettings) (T, error) {
	var zero T

	if err := s.checkNotDisposed(); err != nil {
		return zero, err
	}

	if err := s.checkKey(key); err != nil {
		return zero, err
	}

	if factory == nil {
		return zero, fmt.Errorf("%w: factory must not be nil", ErrInvalidArgument)
	}

	if err := settings.Validate(); err != nil {
		return zero, err
	}

	now := s.clock.Now()

	entry, layerIndex, found, err := s.probe(ctx, key)
	if err != nil {
		return zero, err
	}

	switch {
	case !found:
		return s.refresh(ctx, key, factory, settings, nil, now, StatusMiss)
	case entry.Expired(now):
		return s.refresh(ctx, key, factory, settings, &entry, now, StatusExpired)
	case entry.Stale(now, settings):
		go s.backgroundRefresh(key, factory, settings, &entry)
		return entry.Value, nil
	case layerIndex > 0:
		go s.backgroundBackPopulate(key, layerIndex, entry)
		return entry.Value, nil
	default:
		return entry.Value, nil
	}
}

// backgroundRefresh runs a blocking refresh detached from the caller's
// context, used for the Stale dispatch path so SWR reads never block on
// factory latency (spec.md §4.6 Step 2, testable property 5). previousEntry
// is the stale entry observed by the triggering probe, threaded through so
// the factory sees its value rather than T's zero value.
func (s *Stack[T]) backgroundRefresh(key string, factory RefreshFunc[T], settings CacheSettings, previousEntry *CacheEntry[T]) {
	ctx := context.Background()

	if _, err := s.refresh(ctx, key, factory, settings, previousEntry, s.clock.Now(), StatusStale); err != nil {
		log.FromContext(ctx).Error(err, "background refresh failed", "key", key)
	}
}

// backgroundBackPopulate implements spec.md §4.7. It piggy-backs on the key
// lock so it cannot clash with a concurrent refresh or another
// back-population for the same key.
func (s *Stack[T]) backgroundBackPopulate(key string, hitLayerIndex int, entry CacheEntry[T]) {
	ctx := context.Background()

	if !s.keyLock.TryAcquire(key) {
		// Another writer is active; it will populate all layers itself.
		return
	}

	for i := hitLayerIndex - 1; i >= 0; i-- {
		if !s.layers[i].IsAvailable(ctx, key) {
			continue
		}

		if err := s.layers[i].Set(ctx, key, entry); err != nil {
			log.FromContext(ctx).Error(err, "back-population failed", "key", key, "layer", i)
		}
	}

	s.keyLock.Release(key, entry, nil)
}

// refresh implements spec.md §4.6 Step 3. previousEntry, when non-nil, is
// the entry observed during the initiating probe -- used to seed the
// factory's previous-value argument, and returned as-is to a Stale caller
// that finds the key already held. It is nil for the Miss case, where
// ownRefresh re-reads the layers to recover "another writer finished
// between probes".
func (s *Stack[T]) refresh(ctx context.Context, key string, factory RefreshFunc[T], settings CacheSettings, previousEntry *CacheEntry[T], now time.Time, mode CacheEntryStatus) (T, error) {
	var zero T

	previousValue := zero
	if previousEntry != nil {
		previousValue = previousEntry.Value
	}

	if s.keyLock.TryAcquire(key) {
		return s.ownRefresh(ctx, key, factory, settings, previousValue, now, mode)
	}

	// AlreadyHeld.
	if mode == StatusStale {
		// The caller already has a usable value; the in-flight refresh
		// (or this stale dispatch racing another) is fire-and-forget.
		return previousValue, nil
	}

	entry, found, err := s.Get(ctx, key)
	if err == nil && found && !entry.Expired(now) {
		if staleDate, ok := entry.StaleDate(settings); !ok || staleDate.After(now) {
			return entry.Value, nil
		}
	}

	waited, waitErr, didWait := s.keyLock.Wait(ctx, key)
	if !didWait {
		// The holder released between our TryAcquire and Wait calls;
		// the value is already in the layers, go read it directly.
		entry, found, err := s.Get(ctx, key)
		if err != nil {
			return zero, err
		}

		if found {
			return entry.Value, nil
		}

		return zero, fmt.Errorf("%w: key %q vanished after release", ErrInvalidState, key)
	}

	if waitErr != nil {
		return zero, waitErr
	}

	return waited.Value, nil
}

// ownRefresh is spec.md §4.6 Step 3's Acquired branch: the caller is now the
// sole holder of key and must invoke the wrapped factory, write through,
// notify, and always release -- delivering either the new entry or the
// error to any waiters that queued up in the meantime.
func (s *Stack[T]) ownRefresh(ctx context.Context, key string, factory RefreshFunc[T], settings CacheSettings, previousValue T, now time.Time, mode CacheEntryStatus) (T, error) {
	var zero T

	if mode == StatusMiss {
		// Race recovery: another writer may have finished between our
		// probe and acquiring the lock.
		if entry, found, err := s.Get(ctx, key); err == nil && found && !entry.Expired(now) {
			s.keyLock.Release(key, entry, nil)
			return entry.Value, nil
		}
	}

	newValue, err := s.extensions.withRefresh(ctx, key, settings, previousValue, factory)
	if err != nil {
		wrapped := newFactoryError(key, err)
		s.keyLock.Release(key, CacheEntry[T]{}, wrapped)

		return zero, wrapped
	}

	newEntry := NewCacheEntry(newValue, now, settings.TimeToLive)

	if err := s.writeThrough(ctx, key, newEntry); err != nil {
		s.keyLock.Release(key, CacheEntry[T]{}, err)
		return zero, err
	}

	updateType := AddOrUpdateEntry
	if mode == StatusMiss {
		updateType = AddEntry
	}

	if err := s.extensions.onUpdate(ctx, key, newEntry.Expiry, updateType); err != nil {
		s.keyLock.Release(key, newEntry, nil)
		return newEntry.Value, err
	}

	s.keyLock.Release(key, newEntry, nil)

	return newEntry.Value, nil
}
