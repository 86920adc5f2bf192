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

// Package observability is a cachestack.Extension that wraps every refresh
// in an OpenTelemetry span and counts refreshes (by ok/error outcome),
// updates, evictions and flushes. It does not record hit/stale/expired/miss
// classifications: there is no counter for them, and the refresh span
// carries only the key and TTL.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

const instrumentationName = "github.com/nscale-labs/cachestack"

// Extension records refresh latency/errors as spans and update/eviction/
// flush counts as counters, both under the standard global otel providers.
type Extension[T any] struct {
	cachestack.NoopExtension[T]

	tracer trace.Tracer

	refreshes metric.Int64Counter
	updates   metric.Int64Counter
	evictions metric.Int64Counter
	flushes   metric.Int64Counter
}

// New constructs an observability extension using the global TracerProvider
// and MeterProvider. Call otel.SetTracerProvider/SetMeterProvider before
// wiring this extension so spans/metrics land somewhere other than the
// no-op default (pkg/options sets only the TracerProvider).
func New[T any]() (*Extension[T], error) {
	meter := otel.Meter(instrumentationName)

	refreshes, err := meter.Int64Counter("cachestack.refreshes",
		metric.WithDescription("number of value-factory invocations, by status"))
	if err != nil {
		return nil, fmt.Errorf("observability extension: %w", err)
	}

	updates, err := meter.Int64Counter("cachestack.updates",
		metric.WithDescription("number of successful write-through updates"))
	if err != nil {
		return nil, fmt.Errorf("observability extension: %w", err)
	}

	evictions, err := meter.Int64Counter("cachestack.evictions",
		metric.WithDescription("number of keys evicted"))
	if err != nil {
		return nil, fmt.Errorf("observability extension: %w", err)
	}

	flushes, err := meter.Int64Counter("cachestack.flushes",
		metric.WithDescription("number of full-stack flushes"))
	if err != nil {
		return nil, fmt.Errorf("observability extension: %w", err)
	}

	return &Extension[T]{
		tracer:    otel.Tracer(instrumentationName),
		refreshes: refreshes,
		updates:   updates,
		evictions: evictions,
		flushes:   flushes,
	}, nil
}

// WithRefresh wraps next in a span named "cachestack.refresh", recording
// the key and settings as attributes and the outcome as span status.
func (e *Extension[T]) WithRefresh(ctx context.Context, key string, settings cachestack.CacheSettings, next cachestack.RefreshFunc[T]) cachestack.RefreshFunc[T] {
	return func(ctx context.Context, previous T) (T, error) {
		ctx, span := e.tracer.Start(ctx, "cachestack.refresh",
			trace.WithAttributes(
				attribute.String("cachestack.key", key),
				attribute.Int64("cachestack.ttl_seconds", int64(settings.TimeToLive.Seconds())),
			))
		defer span.End()

		value, err := next(ctx, previous)

		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		e.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))

		return value, err
	}
}

// OnUpdate increments the update counter.
func (e *Extension[T]) OnUpdate(ctx context.Context, _ string, _ time.Time, _ cachestack.CacheUpdateType) {
	e.updates.Add(ctx, 1)
}

// OnEviction increments the eviction counter.
func (e *Extension[T]) OnEviction(ctx context.Context, _ string) {
	e.evictions.Add(ctx, 1)
}

// OnFlush increments the flush counter.
func (e *Extension[T]) OnFlush(ctx context.Context) {
	e.flushes.Add(ctx, 1)
}
