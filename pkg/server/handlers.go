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

package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kacheio/keysched/pkg/cluster"
	"github.com/kacheio/keysched/pkg/keysched"
	"github.com/rs/zerolog/log"
)

// queryRequest is the wire request body for a keys-query call.
type queryRequest struct {
	UserIDs []string `json:"user_ids"`
}

// queryResponse is the wire response body for a keys-query call.
type queryResponse struct {
	Bundles map[string]bundleResponse `json:"bundles"`
}

type bundleResponse struct {
	DeviceKeys map[string]string `json:"device_keys"`
}

// QueryHandler resolves key bundles for the requested user identifiers.
func (s *Server) QueryHandler(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.UserIDs) == 0 {
		http.Error(w, keysched.ErrEmptyIdentifierSet.Error(), http.StatusBadRequest)
		return
	}

	keys := make(map[string]struct{}, len(req.UserIDs))
	for _, id := range req.UserIDs {
		keys[id] = struct{}{}
	}

	bundles, err := s.store.Query(r.Context(), keys)
	if err != nil {
		log.Error().Err(err).Msg("key query failed")
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	resp := queryResponse{Bundles: make(map[string]bundleResponse, len(bundles))}
	for userID, bundle := range bundles {
		dk := make(map[string]string, len(bundle.DeviceKeys))
		for device, key := range bundle.DeviceKeys {
			dk[device] = base64.StdEncoding.EncodeToString(key)
		}
		resp.Bundles[userID] = bundleResponse{DeviceKeys: dk}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode query response")
	}
}

// InvalidateHandler drops a user's cached key bundle locally. Used both as
// the ingress for operator-triggered invalidation and as the endpoint
// cluster.BroadcastInvalidate fans peer invalidations out to.
func (s *Server) InvalidateHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unable to read body", http.StatusBadRequest)
		return
	}
	userID := string(body)
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	s.store.Invalidate(r.Context(), userID)

	if _, ok := r.Header["X-Keysched-Cluster"]; !ok && s.cluster != nil {
		cluster.BroadcastInvalidate(s.cluster, userID)
	}

	w.WriteHeader(http.StatusOK)
}
