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

package cachestack_test

import (
	"sync"
	"time"
)

// staticClock is a fake cachestack.Clock whose time only moves when
// advance is called, letting tests assert exact TTL/stale-after boundary
// behavior without sleeping.
type staticClock struct {
	mu   sync.Mutex
	time time.Time
}

func newStaticClock() *staticClock {
	return &staticClock{time: time.Now()}
}

func (c *staticClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.time
}

func (c *staticClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time = c.time.Add(d)
}
