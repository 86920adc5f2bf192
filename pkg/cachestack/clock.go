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

import "time"

// Clock is the injectable time source used throughout the stack. Production
// code uses realClock; tests inject a fake so expiry/staleness can be
// asserted deterministically instead of racing wall-clock sleeps.
type Clock interface {
	Now() time.Time
}

// realClock defers to the wall clock.
type realClock struct{}

// NewClock returns the production Clock implementation.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}
