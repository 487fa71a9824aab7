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
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	xxhash "github.com/cespare/xxhash/v2"
)

// KeyBundle is the set of cryptographic device keys known for a single user
// identifier, as resolved from the upstream key server.
type KeyBundle struct {
	// UserID is the identifier this bundle was resolved for.
	UserID string

	// DeviceKeys maps a device identifier to its raw public key material.
	DeviceKeys map[string][]byte
}

// entry is the gob-serializable form stored in the provider cache.
type entry struct {
	Bundle    KeyBundle
	Timestamp int64
}

// encode serializes a bundle for storage in a provider.Provider.
func encode(b KeyBundle, timestamp int64) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry{Bundle: b, Timestamp: timestamp}); err != nil {
		return nil, fmt.Errorf("keystore: encode entry: %w", err)
	}
	return buf.Bytes(), nil
}

// decode deserializes a bundle previously written by encode.
func decode(data []byte) (KeyBundle, int64, error) {
	var e entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return KeyBundle{}, 0, fmt.Errorf("keystore: decode entry: %w", err)
	}
	return e.Bundle, e.Timestamp, nil
}

// fromWire converts the raw JSON payload transport.Client returns for a
// single identifier into a KeyBundle.
func fromWire(userID string, raw json.RawMessage) (KeyBundle, error) {
	var wire struct {
		Keys map[string][]byte `json:"keys"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return KeyBundle{}, fmt.Errorf("keystore: decode wire bundle for %q: %w", userID, err)
	}
	return KeyBundle{UserID: userID, DeviceKeys: wire.Keys}, nil
}

// cacheKey produces a stable, restart-independent cache key for a user
// identifier, the same way the teacher's httpcache layer hashes request keys.
func cacheKey(userID string) string {
	return fmt.Sprintf("keybundle-%x", xxhash.Sum64String(userID))
}
