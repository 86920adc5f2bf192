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

package httpapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nscale-labs/cachestack/pkg/cachestack/httpapi"
)

type fakeStack struct {
	flushErr error
	evictErr error
	evicted  string
}

func (f *fakeStack) Close(context.Context) error { return nil }

func (f *fakeStack) Flush(context.Context) error { return f.flushErr }

func (f *fakeStack) Evict(_ context.Context, key string) error {
	f.evicted = key
	return f.evictErr
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server := httpapi.New(&fakeStack{}, "cachestackctl", "test")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFlush(t *testing.T) {
	t.Parallel()

	stack := &fakeStack{}
	server := httpapi.New(stack, "cachestackctl", "test")

	req := httptest.NewRequest(http.MethodPost, "/flush", nil)
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFlushError(t *testing.T) {
	t.Parallel()

	stack := &fakeStack{flushErr: errors.New("layer down")}
	server := httpapi.New(stack, "cachestackctl", "test")

	req := httptest.NewRequest(http.MethodPost, "/flush", nil)
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEvict(t *testing.T) {
	t.Parallel()

	stack := &fakeStack{}
	server := httpapi.New(stack, "cachestackctl", "test")

	req := httptest.NewRequest(http.MethodPost, "/evict/mykey", nil)
	rec := httptest.NewRecorder()

	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "mykey", stack.evicted)
}
