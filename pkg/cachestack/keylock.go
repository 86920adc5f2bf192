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

import (
	"context"
	"sync"
)

// keyLockResult is what a holder delivers to waiters on release: either a
// usable entry or the error the refresh/back-population failed with.
type keyLockResult[T any] struct {
	entry CacheEntry[T]
	err   error
}

// keyLockRow is the per-key table entry. done is closed exactly once, by
// release, after result has been populated -- waiters that observed this
// row before release always see the same result.
type keyLockRow[T any] struct {
	done   chan struct{}
	result keyLockResult[T]
}

// KeyLockTable is the per-key single-flight gate described in spec.md §4.3.
// At most one caller per key holds the row between TryAcquire and Release;
// every other concurrent caller either skips (back-population) or waits and
// receives the holder's result.
//
// Table-level critical sections are insert/lookup/waiter-list manipulation
// only -- never I/O -- per spec.md §5.
type KeyLockTable[T any] struct {
	mu   sync.Mutex
	rows map[string]*keyLockRow[T]
}

// NewKeyLockTable constructs an empty table.
func NewKeyLockTable[T any]() *KeyLockTable[T] {
	return &KeyLockTable[T]{
		rows: make(map[string]*keyLockRow[T]),
	}
}

// TryAcquire attempts to become the sole holder for key. Exactly one caller
// per key receives true until that holder releases.
func (t *KeyLockTable[T]) TryAcquire(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, held := t.rows[key]; held {
		return false
	}

	t.rows[key] = &keyLockRow[T]{done: make(chan struct{})}

	return true
}

// Wait registers as a waiter for key and blocks until the holder releases,
// the context is cancelled, or -- per the spec's race-recovery requirement
// -- the holder already released before Wait acquired the table mutex, in
// which case waited is false and the caller must re-probe the layers
// directly rather than block forever on a row that will never be
// delivered to.
func (t *KeyLockTable[T]) Wait(ctx context.Context, key string) (entry CacheEntry[T], err error, waited bool) {
	t.mu.Lock()
	row, held := t.rows[key]
	t.mu.Unlock()

	if !held {
		return CacheEntry[T]{}, nil, false
	}

	select {
	case <-row.done:
		return row.result.entry, row.result.err, true
	case <-ctx.Done():
		return CacheEntry[T]{}, ctx.Err(), true
	}
}

// Release delivers result to every waiter registered before this call and
// frees the row. A release for a key with no current holder (a caller bug,
// or a debug-assertion candidate per spec.md §9) is a no-op: the error is
// discarded and there is no row to free.
func (t *KeyLockTable[T]) Release(key string, entry CacheEntry[T], err error) {
	t.mu.Lock()
	row, held := t.rows[key]
	if held {
		delete(t.rows, key)
	}
	t.mu.Unlock()

	if !held {
		return
	}

	row.result = keyLockResult[T]{entry: entry, err: err}
	close(row.done)
}

// Len reports the number of keys currently held, for diagnostics.
func (t *KeyLockTable[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.rows)
}
