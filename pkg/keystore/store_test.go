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

package keystore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kacheio/keysched/pkg/provider"
	"github.com/kacheio/keysched/pkg/utils/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher records every call it receives and serves canned bundles.
type stubFetcher struct {
	mu    sync.Mutex
	calls int
	data  map[string]json.RawMessage
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{data: make(map[string]json.RawMessage)}
}

func (f *stubFetcher) put(userID string, deviceKeys map[string][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, _ := json.Marshal(struct {
		Keys map[string][]byte `json:"keys"`
	}{Keys: deviceKeys})
	f.data[userID] = raw
}

func (f *stubFetcher) Fetch(_ context.Context, keys map[string]struct{}) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	out := make(map[string]json.RawMessage, len(keys))
	for k := range keys {
		if raw, ok := f.data[k]; ok {
			out[k] = raw
		}
	}
	return out, nil
}

func (f *stubFetcher) hitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestStore(t *testing.T, fetcher Fetcher) *Store {
	t.Helper()
	cache, err := provider.NewSimpleCache(nil)
	require.NoError(t, err)
	return New(cache, fetcher, Config{TTL: time.Minute}, clock.NewSystemTimeSource(), nil)
}

func TestStore_QueryEmptySetIsMisuse(t *testing.T) {
	fetcher := newStubFetcher()
	s := newTestStore(t, fetcher)

	_, err := s.Query(context.Background(), map[string]struct{}{})
	require.Error(t, err)
}

func TestStore_QueryResolvesThroughSchedulerAndPopulatesCache(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.put("alice", map[string][]byte{"device1": []byte("pubkey-a")})
	s := newTestStore(t, fetcher)

	got, err := s.Query(context.Background(), map[string]struct{}{"alice": {}})
	require.NoError(t, err)
	require.Contains(t, got, "alice")
	assert.Equal(t, []byte("pubkey-a"), got["alice"].DeviceKeys["device1"])
	assert.Equal(t, 1, fetcher.hitCount())

	// Second query for the same user is served entirely from cache.
	got, err = s.Query(context.Background(), map[string]struct{}{"alice": {}})
	require.NoError(t, err)
	require.Contains(t, got, "alice")
	assert.Equal(t, 1, fetcher.hitCount())
}

func TestStore_QueryOnlyFetchesCacheMisses(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.put("alice", map[string][]byte{"device1": []byte("a")})
	fetcher.put("bob", map[string][]byte{"device1": []byte("b")})
	s := newTestStore(t, fetcher)

	_, err := s.Query(context.Background(), map[string]struct{}{"alice": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.hitCount())

	got, err := s.Query(context.Background(), map[string]struct{}{"alice": {}, "bob": {}})
	require.NoError(t, err)
	assert.Contains(t, got, "alice")
	assert.Contains(t, got, "bob")
	assert.Equal(t, 2, fetcher.hitCount())
}

func TestStore_QueryOmitsUnresolvableIdentifiers(t *testing.T) {
	fetcher := newStubFetcher()
	s := newTestStore(t, fetcher)

	got, err := s.Query(context.Background(), map[string]struct{}{"ghost": {}})
	require.NoError(t, err)
	assert.NotContains(t, got, "ghost")
}

func TestStore_InvalidateForcesRefetch(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.put("alice", map[string][]byte{"device1": []byte("v1")})
	s := newTestStore(t, fetcher)

	_, err := s.Query(context.Background(), map[string]struct{}{"alice": {}})
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.hitCount())

	fetcher.put("alice", map[string][]byte{"device1": []byte("v2")})
	s.Invalidate(context.Background(), "alice")

	got, err := s.Query(context.Background(), map[string]struct{}{"alice": {}})
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got["alice"].DeviceKeys["device1"])
	assert.Equal(t, 2, fetcher.hitCount())
}

func TestStore_CloseRejectsFurtherQueries(t *testing.T) {
	fetcher := newStubFetcher()
	s := newTestStore(t, fetcher)
	s.Close()

	_, err := s.Query(context.Background(), map[string]struct{}{"alice": {}})
	require.Error(t, err)
}
