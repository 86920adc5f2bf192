/*
Copyright 2025 the Unikorn Authors.
Copyright 2026 Nscale.

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

package options

import (
	"context"
	"flag"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"

	klog "k8s.io/klog/v2"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// CoreOptions are things all controllers, message consumers and servers will need.
// There is a corresponding Helm include that matches this type.
type CoreOptions struct {
	// Namespace is the namespace we are running in.
	Namespace string
	// OTLPEndpoint is used by OpenTelemetry.
	OTLPEndpoint string
	// Zap controls common logging.
	Zap zap.Options
}

func (o *CoreOptions) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.Namespace, "namespace", "", "Namespace the process is running in.")
	flags.StringVar(&o.OTLPEndpoint, "otlp-endpoint", "", "An optional OTLP endpoint.")

	z := flag.NewFlagSet("", flag.ExitOnError)
	o.Zap.BindFlags(z)

	flags.AddGoFlagSet(z)
}

func (o *CoreOptions) SetupLogging() {
	logr := zap.New(zap.UseFlagOptions(&o.Zap))

	log.SetLogger(logr)
	klog.SetLogger(logr)
	otel.SetLogger(logr)
}

func (o *CoreOptions) SetupOpenTelemetry(ctx context.Context, opts ...trace.TracerProviderOption) error {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if o.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(o.OTLPEndpoint), otlptracehttp.WithInsecure())
		if err != nil {
			return err
		}

		opts = append(opts, trace.WithBatcher(exporter))
	}

	otel.SetTracerProvider(trace.NewTracerProvider(opts...))

	return nil
}

// ServerOptions are shared across all servers.
type ServerOptions struct {
	// ListenAddress tells the server what to listen on, you shouldn't
	// need to change this, its already non-privileged and the default
	// should be modified to avoid clashes with other services e.g prometheus.
	ListenAddress string

	// ReadTimeout defines how long before we give up on the client,
	// this should be fairly short.
	ReadTimeout time.Duration

	// ReadHeaderTimeout defines how long before we give up on the client,
	// this should be fairly short.
	ReadHeaderTimeout time.Duration

	// WriteTimeout defines how long we take to respond before we give up.
	// Ideally we'd like this to be short, but Openstack in general sucks
	// for performance.  Additionally some calls like cluster creation can
	// do a cascading create, e.g. create a default control plane, than in
	// turn creates a project.
	WriteTimeout time.Duration

	// RequestTimeout places a hard limit on all requests lengths.
	RequestTimeout time.Duration
}

func (o *ServerOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&o.ListenAddress, "server-listen-address", ":6080", "API listener address.")
	f.DurationVar(&o.ReadTimeout, "server-read-timeout", time.Second, "How long to wait for the client to send the request body.")
	f.DurationVar(&o.ReadHeaderTimeout, "server-read-header-timeout", time.Second, "How long to wait for the client to send headers.")
	f.DurationVar(&o.WriteTimeout, "server-write-timeout", 10*time.Second, "How long to wait for the API to respond to the client.")
	f.DurationVar(&o.RequestTimeout, "server-request-timeout", 30*time.Second, "How long to wait of a request to be serviced.")
}

// CacheOptions controls the default freshness policy and optional
// cluster-wide locking for a cachestackctl-hosted stack.
type CacheOptions struct {
	// TimeToLive is the default entry lifetime.
	TimeToLive time.Duration
	// StaleAfter is how long before TimeToLive an entry is served stale
	// while a background refresh runs. Zero disables stale-while-revalidate.
	StaleAfter time.Duration
	// FileLayerDir, if set, adds a durable on-disk layer below memory.
	FileLayerDir string
	// DistLock enables the Kubernetes Lease-backed distributed lock
	// extension, serializing refreshes across every process sharing
	// DistLockNamespace rather than just within one.
	DistLock bool
	// DistLockNamespace is the namespace Lease objects are created in.
	DistLockNamespace string
}

func (o *CacheOptions) AddFlags(f *pflag.FlagSet) {
	f.DurationVar(&o.TimeToLive, "cache-ttl", 5*time.Minute, "Default cache entry lifetime.")
	f.DurationVar(&o.StaleAfter, "cache-stale-after", 4*time.Minute, "How long before ttl an entry is served stale while refreshing in the background.")
	f.StringVar(&o.FileLayerDir, "cache-file-layer-dir", "", "If set, adds a durable on-disk layer at this path below the in-memory layer.")
	f.BoolVar(&o.DistLock, "cache-distlock-enable", false, "Enable the Kubernetes Lease-backed cluster-wide refresh lock.")
	f.StringVar(&o.DistLockNamespace, "cache-distlock-namespace", "", "Namespace distlock Lease objects are created in, required if cache-distlock-enable is set.")
}

// ApplyEnvOverrides lets CACHESTACK_-prefixed environment variables override
// any CacheOptions field that was left at its flag default, so the same
// binary can be configured purely through the environment in a container.
// Flags the caller set explicitly always win.
func (o *CacheOptions) ApplyEnvOverrides(f *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix("cachestack")
	v.AutomaticEnv()

	v.SetDefault("cache_ttl", o.TimeToLive)
	v.SetDefault("cache_stale_after", o.StaleAfter)
	v.SetDefault("cache_file_layer_dir", o.FileLayerDir)
	v.SetDefault("cache_distlock_enable", o.DistLock)
	v.SetDefault("cache_distlock_namespace", o.DistLockNamespace)

	if !f.Changed("cache-ttl") {
		o.TimeToLive = durationFromViper(v, "cache_ttl", o.TimeToLive)
	}

	if !f.Changed("cache-stale-after") {
		o.StaleAfter = durationFromViper(v, "cache_stale_after", o.StaleAfter)
	}

	if !f.Changed("cache-file-layer-dir") {
		o.FileLayerDir = v.GetString("cache_file_layer_dir")
	}

	if !f.Changed("cache-distlock-enable") {
		o.DistLock = v.GetBool("cache_distlock_enable")
	}

	if !f.Changed("cache-distlock-namespace") {
		o.DistLockNamespace = v.GetString("cache_distlock_namespace")
	}

	return nil
}

// durationFromViper safely extracts a duration from viper, handling both
// duration strings and integer seconds.
func durationFromViper(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	duration := v.GetDuration(key)
	if duration < time.Millisecond {
		if seconds := v.GetInt(key); seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	if duration > 0 {
		return duration
	}

	return defaultValue
}
