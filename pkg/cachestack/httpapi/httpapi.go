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

// Package httpapi exposes a small administrative HTTP surface over a
// cachestack.Stack: health and operator actions (flush, evict one key).
// There is no per-layer diagnostics or stats route. It is not meant to be
// internet-facing -- no
// authentication is layered on here -- only reachable from inside the
// cluster, alongside the process embedding the stack.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
	loggingmw "github.com/nscale-labs/cachestack/pkg/server/middleware/logging"
	otelmw "github.com/nscale-labs/cachestack/pkg/server/middleware/opentelemetry"
)

// Stats is the shape of a stack the admin surface can introspect. Stack[T]
// satisfies it for any T without the HTTP layer needing to be generic
// itself.
type Stats interface {
	Close(ctx context.Context) error
	Flush(ctx context.Context) error
	Evict(ctx context.Context, key string) error
}

// Server hosts the admin HTTP surface.
type Server struct {
	router chi.Router
}

// New builds a chi-routed admin server around stack. serviceName/version
// are attached to every span the opentelemetry middleware emits.
func New(stack Stats, serviceName, version string) *Server {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(otelmw.New(serviceName, version).Middleware)
	r.Use(loggingmw.New().Middleware)

	r.Get("/healthz", handleHealthz)

	r.Post("/flush", handleFlush(stack))
	r.Post("/evict/{key}", handleEvict(stack))

	return &Server{router: r}
}

// ServeHTTP satisfies http.Handler so Server can be passed directly to
// http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleFlush(stack Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if err := stack.Flush(ctx); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
	}
}

func handleEvict(stack Stats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if err := stack.Evict(ctx, key); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "evicted", "key": key})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var layerErr *cachestack.LayerError
	if errors.As(err, &layerErr) {
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}
