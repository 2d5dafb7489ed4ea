// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ratelimit provides the dispatch limiter shared by every call to a
// rate-limited external service.
//
// A Limiter is constructed explicitly and handed to each client that must
// respect the ceiling. Clients built from the same Limiter share one cadence,
// no matter how many goroutines call them.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between dispatches.
// Waiters are released in the order they called Wait.
type Limiter struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	minSpacing time.Duration
	retryAt    time.Time
}

// New creates a limiter that releases at most one dispatch per minSpacing.
// A non-positive spacing disables limiting.
func New(minSpacing time.Duration) *Limiter {
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	return &Limiter{
		limiter:    rate.NewLimiter(limit, 1),
		minSpacing: minSpacing,
	}
}

// PerSecond creates a limiter from a requests-per-second ceiling.
func PerSecond(rps float64) *Limiter {
	if rps <= 0 {
		return New(0)
	}
	return New(time.Duration(float64(time.Second) / rps))
}

// MinSpacing returns the configured spacing between dispatches.
func (l *Limiter) MinSpacing() time.Duration {
	return l.minSpacing
}

// Wait blocks until the caller may dispatch.
// If ctx is done first the reserved slot is handed back and ctx.Err() is returned.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return l.limiter.Wait(ctx)
}

// Backoff pauses all dispatches for d, e.g. after the service answered 429.
func (l *Limiter) Backoff(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(l.retryAt) {
		l.retryAt = until
	}
}
