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
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Version is the core's own semantic version. Extensions that declare a
// MinCoreVersion are checked against it at registration time.
const Version = "1.0.0"

// RefreshFunc is the value factory, wrapped by every registered extension's
// with_refresh hook before the core invokes it.
type RefreshFunc[T any] func(ctx context.Context, previous T) (T, error)

// Extension is the pluggable interceptor described in spec.md §4.4. All
// methods are optional in spirit -- Extensions embeds a no-op base
// (NoopExtension) so implementations only override what they need.
type Extension[T any] interface {
	// Bind is called once, at registration, with the owning Stack. An
	// extension must not be shared across stacks (spec.md §9).
	Bind(stack *Stack[T])
	// WithRefresh wraps the act of calling the value factory. It may add
	// distributed locking, metrics, timeouts, or anything else that needs
	// to run around a refresh.
	WithRefresh(ctx context.Context, key string, settings CacheSettings, next RefreshFunc[T]) RefreshFunc[T]
	// OnUpdate fires after a successful stack-wide write.
	OnUpdate(ctx context.Context, key string, expiry time.Time, updateType CacheUpdateType)
	// OnEviction fires after Evict completes.
	OnEviction(ctx context.Context, key string)
	// OnFlush fires after Flush completes.
	OnFlush(ctx context.Context)
	// MinCoreVersion is a semver constraint string (e.g. ">= 1.0.0") the
	// core version must satisfy, or "" to skip the check.
	MinCoreVersion() string
}

// NoopExtension is embedded by concrete extensions so they only need to
// override the hooks they care about.
type NoopExtension[T any] struct{}

func (NoopExtension[T]) Bind(*Stack[T]) {}

func (NoopExtension[T]) WithRefresh(_ context.Context, _ string, _ CacheSettings, next RefreshFunc[T]) RefreshFunc[T] {
	return next
}

func (NoopExtension[T]) OnUpdate(context.Context, string, time.Time, CacheUpdateType) {}

func (NoopExtension[T]) OnEviction(context.Context, string) {}

func (NoopExtension[T]) OnFlush(context.Context) {}

func (NoopExtension[T]) MinCoreVersion() string { return "" }

// ExtensionContainer composes zero or more extensions into a single
// pipeline. Refresh wrapping nests in registration order (the first
// registered extension is outermost); listener hooks fan out to every
// registered extension.
type ExtensionContainer[T any] struct {
	extensions []Extension[T]
}

// NewExtensionContainer validates and stores extensions in registration
// order. MinCoreVersion violations are rejected at construction so a
// misconfigured stack fails fast rather than at first use.
func NewExtensionContainer[T any](extensions ...Extension[T]) (*ExtensionContainer[T], error) {
	coreVersion, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("cachestack: invalid core version %q: %w", Version, err)
	}

	for i, ext := range extensions {
		constraintStr := ext.MinCoreVersion()
		if constraintStr == "" {
			continue
		}

		constraint, err := semver.NewConstraint(constraintStr)
		if err != nil {
			return nil, fmt.Errorf("cachestack: extension %d: invalid version constraint %q: %w", i, constraintStr, err)
		}

		if !constraint.Check(coreVersion) {
			return nil, fmt.Errorf("cachestack: extension %d requires core %s, have %s", i, constraintStr, Version)
		}
	}

	return &ExtensionContainer[T]{extensions: extensions}, nil
}

// bind notifies every extension of the owning stack.
func (c *ExtensionContainer[T]) bind(stack *Stack[T]) {
	for _, ext := range c.extensions {
		ext.Bind(stack)
	}
}

// withRefresh composes all registered WithRefresh wrappers around factory,
// nested in registration order, and invokes the result. With zero
// extensions this degenerates to a direct call to factory.
func (c *ExtensionContainer[T]) withRefresh(ctx context.Context, key string, settings CacheSettings, previous T, factory RefreshFunc[T]) (T, error) {
	wrapped := factory
	for i := len(c.extensions) - 1; i >= 0; i-- {
		wrapped = c.extensions[i].WithRefresh(ctx, key, settings, wrapped)
	}

	return wrapped(ctx, previous)
}

// onUpdate fans the update notification out to every listener concurrently.
// An extension failure is logged and does not corrupt the stack's state,
// but the first error is joined back to the caller per spec.md §4.4.
func (c *ExtensionContainer[T]) onUpdate(ctx context.Context, key string, expiry time.Time, updateType CacheUpdateType) error {
	return c.fanOut(ctx, "on_update", func(ext Extension[T]) error {
		ext.OnUpdate(ctx, key, expiry, updateType)
		return nil
	})
}

// onEviction fans the eviction notification out to every listener.
func (c *ExtensionContainer[T]) onEviction(ctx context.Context, key string) error {
	return c.fanOut(ctx, "on_eviction", func(ext Extension[T]) error {
		ext.OnEviction(ctx, key)
		return nil
	})
}

// onFlush fans the flush notification out to every listener.
func (c *ExtensionContainer[T]) onFlush(ctx context.Context) error {
	return c.fanOut(ctx, "on_flush", func(ext Extension[T]) error {
		ext.OnFlush(ctx)
		return nil
	})
}

// fanOut runs call against every extension concurrently via errgroup,
// recovering a panicking listener into a logged ExtensionFailure rather
// than taking down the calling goroutine.
func (c *ExtensionContainer[T]) fanOut(ctx context.Context, hook string, call func(Extension[T]) error) error {
	if len(c.extensions) == 0 {
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)

	for _, ext := range c.extensions {
		ext := ext

		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %s hook panicked: %v", ErrExtensionFailure, hook, r)
				}
			}()

			return call(ext)
		})
	}

	if err := group.Wait(); err != nil {
		log.FromContext(ctx).Error(err, "extension hook failed", "hook", hook)
		return fmt.Errorf("%w: %w", ErrExtensionFailure, err)
	}

	return nil
}
