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
	"net/http"
	"strings"
)

// InvalidationPortName is the named service port peers expose their
// internal invalidation endpoint on.
const InvalidationPortName = "internal"

// InvalidationPath is the path peers expect a cache-invalidation broadcast on.
const InvalidationPath = "/internal/v1/keys/invalidate"

// BroadcastInvalidate tells every peer replica to drop its cached bundle for
// userID. It is fire-and-forget: delivery is retried by the underlying
// request queue, but the caller does not wait for peers to apply it.
func BroadcastInvalidate(conn Connection, userID string) {
	req, err := http.NewRequest(http.MethodPost, InvalidationPath, strings.NewReader(userID))
	if err != nil {
		return
	}
	conn.Broadcast(req, InvalidationPortName, http.MethodPost, InvalidationPath)
}
