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

// Command cachestackctl hosts a cachestack.Stack[string] behind the admin
// HTTP surface, wired with whatever layers and extensions the flags ask
// for. It exists to exercise the library end to end; embedding
// applications are expected to call pkg/cachestack directly rather than
// shell out to this binary.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	klog "k8s.io/klog/v2"

	"sigs.k8s.io/controller-runtime/pkg/client/config"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
	"github.com/nscale-labs/cachestack/pkg/cachestack/extensions/distlock"
	"github.com/nscale-labs/cachestack/pkg/cachestack/extensions/observability"
	"github.com/nscale-labs/cachestack/pkg/cachestack/httpapi"
	"github.com/nscale-labs/cachestack/pkg/cachestack/layers/file"
	"github.com/nscale-labs/cachestack/pkg/cachestack/layers/memory"
	"github.com/nscale-labs/cachestack/pkg/options"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

const application = "cachestackctl"

var version = "dev"

func buildLayers(o *options.CacheOptions) ([]cachestack.CacheLayer[string], error) {
	layers := []cachestack.CacheLayer[string]{memory.New[string]()}

	if o.FileLayerDir != "" {
		fileLayer, err := file.New[string](o.FileLayerDir)
		if err != nil {
			return nil, err
		}

		layers = append(layers, fileLayer)
	}

	return layers, nil
}

func buildExtensions(ctx context.Context, o *options.CacheOptions) (*cachestack.ExtensionContainer[string], error) {
	obs, err := observability.New[string]()
	if err != nil {
		return nil, err
	}

	exts := []cachestack.Extension[string]{obs}

	if o.DistLock {
		if o.DistLockNamespace == "" {
			return nil, errors.New("cache-distlock-namespace is required when cache-distlock-enable is set")
		}

		restConfig, err := config.GetConfig()
		if err != nil {
			return nil, err
		}

		c, err := client.New(restConfig, client.Options{})
		if err != nil {
			return nil, err
		}

		lock, err := distlock.New[string](c, distlock.Config{Namespace: o.DistLockNamespace})
		if err != nil {
			return nil, err
		}

		exts = append(exts, lock)
	}

	return cachestack.NewExtensionContainer(exts...)
}

func run() error {
	zapOptions := &zap.Options{}
	zapOptions.BindFlags(flag.CommandLine)

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	core := &options.CoreOptions{}
	core.AddFlags(pflag.CommandLine)

	server := &options.ServerOptions{}
	server.AddFlags(pflag.CommandLine)

	cacheOpts := &options.CacheOptions{}
	cacheOpts.AddFlags(pflag.CommandLine)

	pflag.Parse()

	if err := cacheOpts.ApplyEnvOverrides(pflag.CommandLine); err != nil {
		return err
	}

	logr := zap.New(zap.UseFlagOptions(zapOptions))

	log.SetLogger(logr)
	klog.SetLogger(logr)
	otel.SetLogger(logr)

	logger := log.Log.WithName("init")
	logger.Info("service starting", "application", application, "version", version)

	ctx, cancel := signalContext()
	defer cancel()

	if err := core.SetupOpenTelemetry(ctx); err != nil {
		return err
	}

	layers, err := buildLayers(cacheOpts)
	if err != nil {
		return err
	}

	extensions, err := buildExtensions(ctx, cacheOpts)
	if err != nil {
		return err
	}

	stack, err := cachestack.New(layers, extensions, cachestack.NewClock())
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := stack.Close(shutdownCtx); err != nil {
			logger.Error(err, "stack shutdown failed")
		}
	}()

	admin := httpapi.New(stack, application, version)

	srv := &http.Server{
		Addr:              server.ListenAddress,
		Handler:           admin,
		ReadTimeout:       server.ReadTimeout,
		ReadHeaderTimeout: server.ReadHeaderTimeout,
		WriteTimeout:      server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(err, "admin server shutdown failed")
		}
	}()

	logger.Info("admin server listening", "address", server.ListenAddress)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := run(); err != nil {
		log.Log.Error(err, "cachestackctl terminated")
		os.Exit(1)
	}
}
