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

// Package cachestackmock provides a gomock-style fault-injecting
// cachestack.CacheLayer[string], for tests that need to assert on call
// order or inject layer failures the reference layers never produce.
package cachestackmock

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/nscale-labs/cachestack/pkg/cachestack"
)

// Layer is a mock of cachestack.CacheLayer[string], written by hand in the
// shape mockgen would generate so it stays a drop-in if the interface is
// ever regenerated.
type Layer struct {
	ctrl     *gomock.Controller
	recorder *LayerMockRecorder
}

// LayerMockRecorder wraps Layer for EXPECT() call chains.
type LayerMockRecorder struct {
	mock *Layer
}

// NewLayer constructs a mock controlled by ctrl.
func NewLayer(ctrl *gomock.Controller) *Layer {
	mock := &Layer{ctrl: ctrl}
	mock.recorder = &LayerMockRecorder{mock: mock}

	return mock
}

var _ cachestack.CacheLayer[string] = (*Layer)(nil)

// EXPECT returns the recorder for setting up call expectations.
func (m *Layer) EXPECT() *LayerMockRecorder {
	return m.recorder
}

func (m *Layer) Get(ctx context.Context, key string) (cachestack.CacheEntry[string], bool, error) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "Get", ctx, key)
	ret0, _ := ret[0].(cachestack.CacheEntry[string])
	ret1, _ := ret[1].(bool)
	ret2, _ := ret[2].(error)

	return ret0, ret1, ret2
}

func (mr *LayerMockRecorder) Get(ctx, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Get", reflect.TypeOf((*Layer)(nil).Get), ctx, key)
}

func (m *Layer) Set(ctx context.Context, key string, entry cachestack.CacheEntry[string]) error {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "Set", ctx, key, entry)
	ret0, _ := ret[0].(error)

	return ret0
}

func (mr *LayerMockRecorder) Set(ctx, key, entry any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Set", reflect.TypeOf((*Layer)(nil).Set), ctx, key, entry)
}

func (m *Layer) Evict(ctx context.Context, key string) error {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "Evict", ctx, key)
	ret0, _ := ret[0].(error)

	return ret0
}

func (mr *LayerMockRecorder) Evict(ctx, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Evict", reflect.TypeOf((*Layer)(nil).Evict), ctx, key)
}

func (m *Layer) Flush(ctx context.Context) error {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "Flush", ctx)
	ret0, _ := ret[0].(error)

	return ret0
}

func (mr *LayerMockRecorder) Flush(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Flush", reflect.TypeOf((*Layer)(nil).Flush), ctx)
}

func (m *Layer) Cleanup(ctx context.Context) error {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "Cleanup", ctx)
	ret0, _ := ret[0].(error)

	return ret0
}

func (mr *LayerMockRecorder) Cleanup(ctx any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Cleanup", reflect.TypeOf((*Layer)(nil).Cleanup), ctx)
}

func (m *Layer) IsAvailable(ctx context.Context, key string) bool {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "IsAvailable", ctx, key)
	ret0, _ := ret[0].(bool)

	return ret0
}

func (mr *LayerMockRecorder) IsAvailable(ctx, key any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "IsAvailable", reflect.TypeOf((*Layer)(nil).IsAvailable), ctx, key)
}
