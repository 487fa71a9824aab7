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

// Package keystore serves device-key lookups for users, backed by a layered
// cache (pkg/provider) in front of a coalescing scheduler (pkg/keysched)
// that in turn drives the upstream key server (pkg/transport).
package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kacheio/keysched/pkg/keysched"
	"github.com/kacheio/keysched/pkg/provider"
	"github.com/kacheio/keysched/pkg/transport"
	"github.com/kacheio/keysched/pkg/utils/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Fetcher resolves a set of user identifiers to their key bundles. It is
// satisfied by *transport.Client; tests may substitute a stub.
type Fetcher interface {
	Fetch(ctx context.Context, keys map[string]struct{}) (map[string]json.RawMessage, error)
}

// Config controls a Store's cache TTL.
type Config struct {
	// TTL is how long a resolved bundle stays valid in cache.
	TTL time.Duration `yaml:"ttl"`
}

// Sanitize fills in defaults for zero-valued fields.
func (c *Config) Sanitize() {
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
}

// Store serves key-bundle lookups, consulting cache before falling through
// to the coalescing scheduler.
type Store struct {
	cache provider.Provider
	sched *keysched.Scheduler[string, KeyBundle]
	clock clock.TimeSource
	ttl   time.Duration
}

// New builds a Store. reg may be nil, in which case the scheduler's metrics
// are not registered anywhere (useful in tests).
func New(cache provider.Provider, fetcher Fetcher, config Config, ts clock.TimeSource, reg prometheus.Registerer) *Store {
	config.Sanitize()
	if ts == nil {
		ts = clock.NewSystemTimeSource()
	}

	s := &Store{cache: cache, clock: ts, ttl: config.TTL}
	s.sched = keysched.New[string, KeyBundle](s.resolve(fetcher), reg)
	return s
}

// resolve adapts a Fetcher into a keysched.QueryAction, decoding each
// resolved identifier's wire payload into a KeyBundle.
func (s *Store) resolve(fetcher Fetcher) keysched.QueryAction[string, KeyBundle] {
	return func(ctx context.Context, keys map[string]struct{}) (map[string]KeyBundle, error) {
		raw, err := fetcher.Fetch(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("keystore: resolve wave: %w", err)
		}

		bundles := make(map[string]KeyBundle, len(raw))
		for userID, payload := range raw {
			bundle, err := fromWire(userID, payload)
			if err != nil {
				log.Error().Err(err).Str("user", userID).Msg("dropping malformed key bundle")
				continue
			}
			bundles[userID] = bundle
		}
		return bundles, nil
	}
}

// Query resolves key bundles for the given user identifiers, serving
// whatever it can from cache and coalescing the remainder through the
// scheduler. The returned map contains an entry only for identifiers that
// were actually resolved (by cache or upstream); a missing identifier is
// not an error.
func (s *Store) Query(ctx context.Context, userIDs map[string]struct{}) (map[string]KeyBundle, error) {
	if len(userIDs) == 0 {
		return nil, keysched.ErrEmptyIdentifierSet
	}

	out := make(map[string]KeyBundle, len(userIDs))
	miss := make(map[string]struct{})

	for userID := range userIDs {
		if data := s.cache.Get(ctx, cacheKey(userID)); data != nil {
			bundle, _, err := decode(data)
			if err != nil {
				log.Warn().Err(err).Str("user", userID).Msg("dropping corrupt cache entry")
				miss[userID] = struct{}{}
				continue
			}
			out[userID] = bundle
			continue
		}
		miss[userID] = struct{}{}
	}

	if len(miss) == 0 {
		return out, nil
	}

	resolved, err := s.sched.Query(ctx, miss)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().Unix()
	for userID, bundle := range resolved {
		data, err := encode(bundle, now)
		if err != nil {
			log.Warn().Err(err).Str("user", userID).Msg("failed to encode key bundle for cache")
			out[userID] = bundle
			continue
		}
		s.cache.Set(cacheKey(userID), data, s.ttl)
		out[userID] = bundle
	}

	return out, nil
}

// Invalidate drops a user's cached key bundle, e.g. on a cluster-broadcast
// notification that their devices changed.
func (s *Store) Invalidate(ctx context.Context, userID string) {
	s.cache.Delete(ctx, cacheKey(userID))
}

// Close closes the underlying scheduler: a later Query that has cache misses
// fails with keysched.ErrSchedulerClosed. A Query served entirely from cache
// still succeeds. In-flight waves are left to drain.
func (s *Store) Close() {
	s.sched.Close()
}
