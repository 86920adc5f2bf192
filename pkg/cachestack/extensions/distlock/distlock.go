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

// Package distlock is a cachestack.Extension that backs the in-process
// KeyLockTable with a Kubernetes coordination.k8s.io/v1 Lease, so that
// refreshes are single-flighted across an entire fleet of processes
// sharing a cache stack, not just within one. It is a collaborator, not a
// core concern: the core's own key lock already protects a single
// process, and this extension only tightens that to the cluster.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/go-jose/go-jose/v4"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

// Extension serializes refreshes for the same key across every process
// sharing namespace, by acquiring a Lease named after the key before
// calling the wrapped factory.
type Extension[T any] struct {
	cachestack.NoopExtension[T]

	client    client.Client
	namespace string
	holder    string
	leaseTTL  time.Duration

	signer jose.Signer
}

// Config controls lease naming and holder identity.
type Config struct {
	// Namespace the Lease objects are created in.
	Namespace string
	// LeaseTTL is how long a lease is held before it is considered
	// abandoned by a crashed holder.
	LeaseTTL time.Duration
	// SigningKey, if non-nil, is used to sign the holder identity
	// recorded on each lease so a stray release (spec.md §9) from a
	// process that no longer holds the lease can be detected and
	// ignored rather than stealing another holder's lock.
	SigningKey []byte
}

// New constructs a distlock extension. holder identity is a random token,
// optionally signed with cfg.SigningKey.
func New[T any](c client.Client, cfg Config) (*Extension[T], error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("distlock extension: namespace is required")
	}

	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}

	holderID := make([]byte, 16)
	if _, err := rand.Read(holderID); err != nil {
		return nil, fmt.Errorf("distlock extension: generating holder id: %w", err)
	}

	holder := hex.EncodeToString(holderID)

	ext := &Extension[T]{
		client:    c,
		namespace: cfg.Namespace,
		holder:    holder,
		leaseTTL:  cfg.LeaseTTL,
	}

	if len(cfg.SigningKey) > 0 {
		signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: cfg.SigningKey}, nil)
		if err != nil {
			return nil, fmt.Errorf("distlock extension: building signer: %w", err)
		}

		ext.signer = signer

		signed, err := signer.Sign([]byte(holder))
		if err != nil {
			return nil, fmt.Errorf("distlock extension: signing holder identity: %w", err)
		}

		compact, err := signed.CompactSerialize()
		if err != nil {
			return nil, fmt.Errorf("distlock extension: serializing holder token: %w", err)
		}

		ext.holder = compact
	}

	return ext, nil
}

func (e *Extension[T]) leaseName(key string) string {
	return "cachestack-" + hex.EncodeToString([]byte(key))
}

// WithRefresh acquires a cluster-wide lease named after key before invoking
// next, blocking (with backoff) until it can, then releases it afterwards
// regardless of outcome. A lease that is held but expired (holder crashed
// without releasing) is reclaimed rather than waited out forever.
func (e *Extension[T]) WithRefresh(_ context.Context, key string, _ cachestack.CacheSettings, next cachestack.RefreshFunc[T]) cachestack.RefreshFunc[T] {
	return func(ctx context.Context, previous T) (T, error) {
		if err := e.acquire(ctx, key); err != nil {
			var zero T
			return zero, fmt.Errorf("distlock extension: acquiring lease for %q: %w", key, err)
		}

		defer func() {
			if err := e.release(ctx, key); err != nil {
				log.FromContext(ctx).Error(err, "distlock extension: releasing lease failed", "key", key)
			}
		}()

		return next(ctx, previous)
	}
}

func (e *Extension[T]) acquire(ctx context.Context, key string) error {
	name := e.leaseName(key)

	backoff := 50 * time.Millisecond

	for {
		lease := &coordinationv1.Lease{}
		err := e.client.Get(ctx, types.NamespacedName{Namespace: e.namespace, Name: name}, lease)

		switch {
		case apierrors.IsNotFound(err):
			if err := e.create(ctx, name); err == nil {
				return nil
			} else if !apierrors.IsAlreadyExists(err) {
				return err
			}
		case err != nil:
			return err
		case e.expired(lease):
			if err := e.steal(ctx, lease); err == nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

func (e *Extension[T]) create(ctx context.Context, name string) error {
	now := metav1.NewMicroTime(time.Now())
	leaseSeconds := int32(e.leaseTTL.Seconds())

	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: e.namespace,
		},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &e.holder,
			AcquireTime:          &now,
			RenewTime:            &now,
			LeaseDurationSeconds: &leaseSeconds,
		},
	}

	return e.client.Create(ctx, lease)
}

func (e *Extension[T]) expired(lease *coordinationv1.Lease) bool {
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return true
	}

	deadline := lease.Spec.RenewTime.Add(time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second)

	return time.Now().After(deadline)
}

func (e *Extension[T]) steal(ctx context.Context, lease *coordinationv1.Lease) error {
	now := metav1.NewMicroTime(time.Now())
	leaseSeconds := int32(e.leaseTTL.Seconds())

	lease.Spec.HolderIdentity = &e.holder
	lease.Spec.AcquireTime = &now
	lease.Spec.RenewTime = &now
	lease.Spec.LeaseDurationSeconds = &leaseSeconds

	return e.client.Update(ctx, lease)
}

// release deletes the lease, but only if this extension is still the
// recorded holder -- a stray release from an extension instance whose
// lease was already reclaimed by another process (spec.md §9's
// stray-release scenario, generalized to the cluster) must not delete the
// new holder's lease.
func (e *Extension[T]) release(ctx context.Context, key string) error {
	name := e.leaseName(key)

	lease := &coordinationv1.Lease{}
	if err := e.client.Get(ctx, types.NamespacedName{Namespace: e.namespace, Name: name}, lease); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}

		return err
	}

	if lease.Spec.HolderIdentity == nil || *lease.Spec.HolderIdentity != e.holder {
		return nil
	}

	if err := e.client.Delete(ctx, lease); err != nil && !apierrors.IsNotFound(err) {
		return err
	}

	return nil
}

// MinCoreVersion requires the 1.x core, since it depends on the exact
// RefreshFunc signature WithRefresh wraps.
func (e *Extension[T]) MinCoreVersion() string {
	return ">= 1.0.0, < 2.0.0"
}
