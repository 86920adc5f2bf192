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

// Package file provides an on-disk cachestack.CacheLayer: one YAML file per
// entry, plus a manifest file tracking which keys are live. It is the
// reference "slowest/largest" layer -- durable across process restarts,
// unavailable if its directory can't be statted.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"sigs.k8s.io/yaml"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

// manifest is the JSON document tracking which keys currently have a file
// on disk. Every Set/Evict computes a JSON merge patch for the one changed
// key, applies it to the current document, and writes the whole resulting
// manifest back to disk; the file is not patched in place.
type manifest struct {
	Keys map[string]bool `json:"keys"`
}

// Layer is a cachestack.CacheLayer backed by a directory of YAML files.
type Layer[T any] struct {
	dir string
	mu  sync.Mutex
}

// New constructs a file layer rooted at dir, creating it if necessary.
func New[T any](dir string) (*Layer[T], error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file layer: %w", err)
	}

	l := &Layer[T]{dir: dir}

	if _, err := l.readManifest(); err != nil {
		return nil, err
	}

	return l, nil
}

var _ cachestack.CacheLayer[int] = (*Layer[int])(nil)

func (l *Layer[T]) manifestPath() string {
	return filepath.Join(l.dir, "manifest.json")
}

func (l *Layer[T]) entryPath(key string) string {
	return filepath.Join(l.dir, fmt.Sprintf("%x.yaml", []byte(key)))
}

func (l *Layer[T]) readManifest() (manifest, error) {
	data, err := os.ReadFile(l.manifestPath())
	if os.IsNotExist(err) {
		return manifest{Keys: map[string]bool{}}, nil
	}

	if err != nil {
		return manifest{}, fmt.Errorf("file layer: reading manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("file layer: decoding manifest: %w", err)
	}

	if m.Keys == nil {
		m.Keys = map[string]bool{}
	}

	return m, nil
}

// patchManifest applies a single add/remove-key change to the manifest via
// a JSON merge patch and rewrites the whole manifest file with the result.
// It reads and writes the full key set; callers serialize it through l.mu.
func (l *Layer[T]) patchManifest(key string, present bool) error {
	before, err := l.readManifest()
	if err != nil {
		return err
	}

	beforeJSON, err := jsonMarshal(before)
	if err != nil {
		return err
	}

	after := before
	after.Keys = make(map[string]bool, len(before.Keys))

	for k, v := range before.Keys {
		after.Keys[k] = v
	}

	if present {
		after.Keys[key] = true
	} else {
		delete(after.Keys, key)
	}

	afterJSON, err := jsonMarshal(after)
	if err != nil {
		return err
	}

	patch, err := jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
	if err != nil {
		return fmt.Errorf("file layer: computing manifest patch: %w", err)
	}

	patched, err := jsonpatch.MergePatch(beforeJSON, patch)
	if err != nil {
		return fmt.Errorf("file layer: applying manifest patch: %w", err)
	}

	return os.WriteFile(l.manifestPath(), patched, 0o640)
}

func jsonMarshal(m manifest) ([]byte, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	// sigs.k8s.io/yaml round-trips through JSON internally; Marshal here
	// already produces JSON-compatible output for the jsonpatch calls
	// above since manifest has no YAML-only fields.
	return yaml.YAMLToJSON(out)
}

// Get reads and decodes the entry file for key, if the manifest lists it.
func (l *Layer[T]) Get(_ context.Context, key string) (cachestack.CacheEntry[T], bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.readManifest()
	if err != nil {
		return cachestack.CacheEntry[T]{}, false, err
	}

	if !m.Keys[key] {
		return cachestack.CacheEntry[T]{}, false, nil
	}

	data, err := os.ReadFile(l.entryPath(key))
	if os.IsNotExist(err) {
		return cachestack.CacheEntry[T]{}, false, nil
	}

	if err != nil {
		return cachestack.CacheEntry[T]{}, false, fmt.Errorf("file layer: reading entry %q: %w", key, err)
	}

	var onDisk struct {
		Value  T         `json:"value"`
		Expiry time.Time `json:"expiry"`
	}

	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return cachestack.CacheEntry[T]{}, false, fmt.Errorf("file layer: decoding entry %q: %w", key, err)
	}

	return cachestack.CacheEntry[T]{Value: onDisk.Value, Expiry: onDisk.Expiry}, true, nil
}

// Set writes the entry file for key and marks it live in the manifest.
func (l *Layer[T]) Set(_ context.Context, key string, entry cachestack.CacheEntry[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	onDisk := struct {
		Value  T         `json:"value"`
		Expiry time.Time `json:"expiry"`
	}{Value: entry.Value, Expiry: entry.Expiry}

	data, err := yaml.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("file layer: encoding entry %q: %w", key, err)
	}

	if err := os.WriteFile(l.entryPath(key), data, 0o640); err != nil {
		return fmt.Errorf("file layer: writing entry %q: %w", key, err)
	}

	return l.patchManifest(key, true)
}

// Evict removes the entry file for key and drops key from the manifest.
func (l *Layer[T]) Evict(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(l.entryPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file layer: removing entry %q: %w", key, err)
	}

	return l.patchManifest(key, false)
}

// Flush removes every entry file and resets the manifest.
func (l *Layer[T]) Flush(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, err := l.readManifest()
	if err != nil {
		return err
	}

	for key := range m.Keys {
		if err := os.Remove(l.entryPath(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("file layer: removing entry %q: %w", key, err)
		}
	}

	empty, err := jsonMarshal(manifest{Keys: map[string]bool{}})
	if err != nil {
		return err
	}

	return os.WriteFile(l.manifestPath(), empty, 0o640)
}

// Cleanup removes every entry file whose expiry has passed.
func (l *Layer[T]) Cleanup(ctx context.Context) error {
	l.mu.Lock()
	m, err := l.readManifest()
	l.mu.Unlock()

	if err != nil {
		return err
	}

	now := time.Now()

	for key := range m.Keys {
		entry, found, err := l.Get(ctx, key)
		if err != nil || !found {
			continue
		}

		if !entry.Expiry.After(now) {
			if err := l.Evict(ctx, key); err != nil {
				return err
			}
		}
	}

	return nil
}

// IsAvailable reports whether the layer's directory is currently
// reachable -- a stand-in for the network partition checks a remote layer
// would make.
func (l *Layer[T]) IsAvailable(context.Context, string) bool {
	_, err := os.Stat(l.dir)
	return err == nil
}
