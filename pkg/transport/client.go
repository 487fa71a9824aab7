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

// Package transport issues the upstream key-server call a wave resolves to.
// It knows nothing about coalescing; it is handed one already-merged set of
// identifiers per call and returns one raw payload per identifier found.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls the upstream key-server HTTP client.
type Config struct {
	// Endpoint is the key server's query URL, e.g. http://keyserver:8080/v1/keys.
	Endpoint string `yaml:"endpoint"`

	// Timeout bounds a single upstream call.
	Timeout time.Duration `yaml:"timeout"`

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Sanitize fills in defaults for zero-valued fields.
func (c *Config) Sanitize() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
}

// queryRequest is the wire request body: the aggregated identifier set for one wave.
type queryRequest struct {
	Keys []string `json:"keys"`
}

// queryResponse is the wire response body: one raw payload per identifier the
// key server could resolve. Identifiers it could not resolve are simply absent.
type queryResponse struct {
	Results map[string]json.RawMessage `json:"results"`
}

// Client issues batched key lookups against an upstream key server.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a Client with a custom-dialed transport, matching the
// teacher's upstream-facing RoundTripper construction.
func NewClient(config Config) *Client {
	config.Sanitize()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	rt := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if config.InsecureSkipVerify {
		rt.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		endpoint: config.Endpoint,
		http: &http.Client{
			Transport: rt,
			Timeout:   config.Timeout,
		},
	}
}

// Fetch resolves one wave's aggregated identifier set against the upstream
// key server. The returned map holds one entry per identifier the server
// could resolve; identifiers it didn't recognize are simply absent, not an
// error.
func (c *Client) Fetch(ctx context.Context, keys map[string]struct{}) (map[string]json.RawMessage, error) {
	body := queryRequest{Keys: make([]string, 0, len(keys))}
	for k := range keys {
		body.Keys = append(body.Keys, k)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Int("keys", len(body.Keys)).Str("endpoint", c.endpoint).Msg("querying upstream key server")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transport: upstream returned %s: %s", resp.Status, string(data))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("transport: decode response: %w", err)
	}

	return out.Results, nil
}
