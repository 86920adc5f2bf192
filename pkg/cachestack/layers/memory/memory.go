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

// Package memory provides an in-process, map-backed cachestack.CacheLayer.
// It is the reference "fastest/smallest" layer -- always available, and it
// never removes expired entries on its own: Get returns them as stored (the
// Stack classifies them as expired and overwrites them on refresh), and
// they are only deleted when Cleanup is called.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/brunoga/deep"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

// Layer is a thread-safe in-memory cachestack.CacheLayer.
type Layer[T any] struct {
	mu      sync.RWMutex
	entries map[string]cachestack.CacheEntry[T]
}

// New constructs an empty memory layer.
func New[T any]() *Layer[T] {
	return &Layer[T]{
		entries: make(map[string]cachestack.CacheEntry[T]),
	}
}

var _ cachestack.CacheLayer[int] = (*Layer[int])(nil)

// Get returns a deep copy of the stored entry so a caller mutating the
// returned value (if T is a pointer, slice or map) can never corrupt what
// the layer has stored.
func (l *Layer[T]) Get(_ context.Context, key string) (cachestack.CacheEntry[T], bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[key]
	if !ok {
		return cachestack.CacheEntry[T]{}, false, nil
	}

	copied, err := deep.Copy(entry.Value)
	if err != nil {
		return cachestack.CacheEntry[T]{}, false, err
	}

	return cachestack.CacheEntry[T]{Value: copied, Expiry: entry.Expiry}, true, nil
}

// Set stores a deep copy of entry, so later caller-side mutation of the
// value passed in cannot reach back into the layer.
func (l *Layer[T]) Set(_ context.Context, key string, entry cachestack.CacheEntry[T]) error {
	copied, err := deep.Copy(entry.Value)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[key] = cachestack.CacheEntry[T]{Value: copied, Expiry: entry.Expiry}

	return nil
}

// Evict removes key. Evicting an absent key is a no-op.
func (l *Layer[T]) Evict(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)

	return nil
}

// Flush empties the layer.
func (l *Layer[T]) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[string]cachestack.CacheEntry[T])

	return nil
}

// Cleanup removes every entry whose expiry has passed.
func (l *Layer[T]) Cleanup(_ context.Context) error {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.entries {
		if !entry.Expiry.After(now) {
			delete(l.entries, key)
		}
	}

	return nil
}

// IsAvailable always reports true: an in-process map has no partition mode.
func (l *Layer[T]) IsAvailable(context.Context, string) bool {
	return true
}

// Len reports the number of entries currently stored, for diagnostics.
func (l *Layer[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}
