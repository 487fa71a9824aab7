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

package cluster

import (
	"sync"

	xxhash "github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// Ring assigns user identifiers to replicas by rendezvous (highest random
// weight) hashing, so that each replica's local cache tends to hold a
// disjoint slice of users and cache-warming after a rollout doesn't require
// every replica to independently query the same users.
type Ring struct {
	mu   sync.RWMutex
	r    *rendezvous.Rendezvous
	self string
}

// NewRing builds a Ring seeded with the given replica names. self is this
// process's own name and must be among nodes.
func NewRing(self string, nodes []string) *Ring {
	return &Ring{
		r:    rendezvous.New(nodes, xxhash.Sum64String),
		self: self,
	}
}

// Owner returns the replica name responsible for a user identifier.
func (r *Ring) Owner(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.r.Lookup(userID)
}

// Owns reports whether this replica is the assigned owner of userID.
func (r *Ring) Owns(userID string) bool {
	return r.Owner(userID) == r.self
}

// SetNodes replaces the ring's membership, e.g. after Endpoints() observes
// a scale-up or scale-down.
func (r *Ring) SetNodes(nodes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.r = rendezvous.New(nodes, xxhash.Sum64String)
}
