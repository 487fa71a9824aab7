// MIT License
//
// Copyright (c) 2023 kache.io
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package keysched implements a concurrency primitive that coalesces
// overlapping concurrent lookups for sets of identifiers so that an
// expensive asynchronous action is invoked at most once per wave.
package keysched

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrEmptyIdentifierSet is returned synchronously when Query is
	// called with an empty identifier set. It never touches the wave
	// machinery.
	ErrEmptyIdentifierSet = errors.New("keysched: identifier set must not be empty")

	// ErrSchedulerClosed is returned synchronously by Query after Close
	// has been called.
	ErrSchedulerClosed = errors.New("keysched: scheduler is closed")
)

// QueryAction is the externally supplied function the Scheduler coalesces
// calls to. Given the aggregated identifier set of one wave, it eventually
// resolves a record per identifier, or fails the whole wave with a single
// error delivered unchanged to every waiter. The Scheduler never invokes
// its own action more than once at a time, and never retries a failed
// invocation.
type QueryAction[K comparable, V any] func(ctx context.Context, keys map[K]struct{}) (map[K]V, error)

// result is what a waiter's completion handle is signalled with.
type result[K comparable, V any] struct {
	resp map[K]V
	err  error
}

// waiter is one outstanding Query call, attached to exactly one wave for
// its entire lifetime.
type waiter[K comparable, V any] struct {
	keys map[K]struct{}
	done chan result[K, V]
}

// wave is the unit of coalescing: one (eventual) QueryAction invocation
// and the ordered list of waiters it will serve.
type wave[K comparable, V any] struct {
	keys    map[K]struct{}
	waiters []*waiter[K, V]
}

func newWave[K comparable, V any]() *wave[K, V] {
	return &wave[K, V]{keys: make(map[K]struct{})}
}

// attach appends w to the wave without growing its aggregated set. Used
// when w's requested keys are already a subset of the wave's set.
func (wv *wave[K, V]) attach(w *waiter[K, V]) {
	wv.waiters = append(wv.waiters, w)
}

// attachAndGrow appends w and unions its requested keys into the wave's
// aggregated set. Only valid while the wave is Pending; the set is frozen
// the instant the wave is promoted to InFlight.
func (wv *wave[K, V]) attachAndGrow(w *waiter[K, V]) {
	wv.attach(w)
	for k := range w.keys {
		wv.keys[k] = struct{}{}
	}
}

// covers reports whether every key in keys already belongs to the wave's
// aggregated set.
func (wv *wave[K, V]) covers(keys map[K]struct{}) bool {
	for k := range keys {
		if _, ok := wv.keys[k]; !ok {
			return false
		}
	}
	return true
}

// Scheduler coalesces overlapping concurrent Query calls for sets of
// identifiers. At most one wave is InFlight and at most one is Pending at
// any time; see the package-level invariants this implements in
// SPEC_FULL.md.
type Scheduler[K comparable, V any] struct {
	mu sync.Mutex

	action QueryAction[K, V]

	inflight *wave[K, V]
	pending  *wave[K, V]

	closed bool

	metrics *metrics
}

// New creates a Scheduler around the given QueryAction. If reg is
// non-nil, per-wave metrics are registered under it.
func New[K comparable, V any](action QueryAction[K, V], reg prometheus.Registerer) *Scheduler[K, V] {
	return &Scheduler[K, V]{
		action:  action,
		metrics: newMetrics(reg),
	}
}

// Query resolves the given non-empty set of identifiers. Concurrent calls
// are coalesced per the classification rule: a caller whose identifiers
// are already covered by the in-flight wave rides along with it; a caller
// introducing any new identifier joins (or starts) the next wave instead.
func (s *Scheduler[K, V]) Query(ctx context.Context, keys map[K]struct{}) (map[K]V, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyIdentifierSet
	}

	own := make(map[K]struct{}, len(keys))
	for k := range keys {
		own[k] = struct{}{}
	}

	w := &waiter[K, V]{keys: own, done: make(chan result[K, V], 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}

	switch {
	case s.inflight == nil:
		// No wave exists: this caller starts one.
		s.inflight = newWave[K, V]()
		s.inflight.attachAndGrow(w)
		s.metrics.wavesStarted.Inc()
		s.metrics.inflightGauge.Set(1)
		go s.run(s.inflight)

	case s.inflight.covers(own):
		// Already being fetched: ride along, no new invocation.
		s.inflight.attach(w)
		s.metrics.coalesced.Inc()

	case s.pending == nil:
		// Introduces a new identifier and nothing is queued yet:
		// defer to the next wave.
		s.pending = newWave[K, V]()
		s.pending.attachAndGrow(w)
		s.metrics.pendingGauge.Set(1)

	default:
		// Join the already-queued next wave, growing its set.
		s.pending.attachAndGrow(w)
		s.metrics.coalesced.Inc()
	}
	s.mu.Unlock()

	select {
	case r := <-w.done:
		return r.resp, r.err
	case <-ctx.Done():
		// The wave is left untouched; w.done is buffered so the
		// executor never blocks delivering to an abandoned waiter.
		return nil, ctx.Err()
	}
}

// run invokes the QueryAction for wv, promotes a Pending wave (if any) to
// InFlight, fans out wv's outcome to every attached waiter, and then starts
// the promoted wave's invocation.
func (s *Scheduler[K, V]) run(wv *wave[K, V]) {
	keys := make(map[K]struct{}, len(wv.keys))
	for k := range wv.keys {
		keys[k] = struct{}{}
	}

	start := time.Now()
	resp, err := s.action(context.Background(), keys)
	s.metrics.waveDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	next := s.pending
	s.pending = nil
	s.inflight = next
	if next != nil {
		s.metrics.wavesStarted.Inc()
		s.metrics.pendingGauge.Set(0)
	} else {
		s.metrics.inflightGauge.Set(0)
	}
	s.mu.Unlock()

	for _, w := range wv.waiters {
		if err != nil {
			w.done <- result[K, V]{err: err}
			continue
		}
		// Filter is always by the caller's own request set, never by
		// the wave's (possibly broader) aggregated set.
		filtered := make(map[K]V, len(w.keys))
		for k := range w.keys {
			if v, ok := resp[k]; ok {
				filtered[k] = v
			}
		}
		w.done <- result[K, V]{resp: filtered}
	}

	if next != nil {
		go s.run(next)
	}
}

// Close marks the scheduler closed. Subsequent Query calls fail
// synchronously with ErrSchedulerClosed; any wave already in flight or
// pending is left to drain and signal its waiters normally.
func (s *Scheduler[K, V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
