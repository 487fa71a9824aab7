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

package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

// requestCoalescer dedupes identical concurrent ingress requests (same
// method, path, and body) against a single execution of the wrapped
// handler. This is a different concern from pkg/keysched's own coalescing:
// keysched merges overlapping but non-identical identifier sets across a
// wave's lifetime, while this only protects against exact-duplicate
// requests arriving at the same instant (e.g. a client retrying before the
// first attempt's response comes back).
type requestCoalescer struct {
	sync.Mutex
	inflights map[uint64]*call

	next http.Handler
}

// call is an in-flight or completed singleflight request.
type call struct {
	*sync.Cond // rendezvous point for goroutines.

	// coalesced indicates if there are any calls waiting
	// for the initial in-flight request's response.
	coalesced bool
	status    int
	header    http.Header
	body      []byte
}

// NewCoalesced wraps an http.Handler with request coalescing.
func NewCoalesced(next http.Handler) http.Handler {
	return &requestCoalescer{
		inflights: make(map[uint64]*call),
		next:      next,
	}
}

// ServeHTTP coalesces concurrent identical requests into a single call to
// the wrapped handler, and replays that call's response to every waiter.
func (coalescer *requestCoalescer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	key := requestKey(r.Method, r.URL.String(), body)

	coalescer.Lock()
	inflight, ok := coalescer.inflights[key]
	if ok {
		inflight.L.Lock()
		coalescer.Unlock()

		inflight.coalesced = true
		inflight.Wait()
		inflight.L.Unlock()

		writeReplay(w, inflight)
		return
	}

	inflight = &call{Cond: sync.NewCond(&sync.Mutex{})}
	coalescer.inflights[key] = inflight
	coalescer.Unlock()

	rec := httptest.NewRecorder()
	coalescer.next.ServeHTTP(rec, r)

	coalescer.Lock()
	delete(coalescer.inflights, key)
	coalescer.Unlock()

	inflight.L.Lock()
	if inflight.coalesced {
		inflight.status = rec.Code
		inflight.header = rec.Header().Clone()
		inflight.body = rec.Body.Bytes()
		inflight.Broadcast()
	}
	inflight.L.Unlock()

	for k, vv := range rec.Header() {
		w.Header()[k] = vv
	}
	w.WriteHeader(rec.Code)
	if _, err := w.Write(rec.Body.Bytes()); err != nil {
		log.Error().Err(err).Msg("error writing coalesced response")
	}
}

// writeReplay copies a completed call's recorded response to a waiter.
func writeReplay(w http.ResponseWriter, c *call) {
	for k, vv := range c.header {
		w.Header()[k] = vv
	}
	w.WriteHeader(c.status)
	if _, err := w.Write(c.body); err != nil {
		log.Error().Err(err).Msg("error writing replayed response")
	}
}

// requestKey hashes method, path, and body into a single coalescing key.
func requestKey(method, path string, body []byte) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(method)
	_, _ = h.WriteString(path)
	_, _ = h.Write(body)
	return h.Sum64()
}
