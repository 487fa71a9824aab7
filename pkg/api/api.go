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

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kacheio/keysched/pkg/config"
	"github.com/kacheio/keysched/pkg/server"
	"github.com/kacheio/keysched/pkg/utils/version"
	"github.com/rs/zerolog/log"
)

// API is the root API structure.
type API struct {
	// config is the API configuration.
	config config.API

	// router is the API router, rooted at the configured prefix.
	router *mux.Router

	// filter is the access control list guarding every route. If no
	// addresses are configured, the filter is inactive.
	filter *IPFilter
}

// New creates a new API, rooted at cfg.GetPrefix(). If srv is non-nil,
// the keystore admin routes are registered against it.
func New(cfg config.API, srv *server.Server) (*API, error) {
	filter, err := NewIPFilter(cfg.ACL)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	api := &API{
		config: cfg,
		router: mux.NewRouter().PathPrefix(cfg.GetPrefix()).Subrouter(),
		filter: filter,
	}
	api.createRoutes()

	if srv != nil {
		api.RegisterKeystore(srv)
	}

	if cfg.Debug {
		DebugHandler{}.Append(api.router)
	}

	return api, nil
}

// Run starts the API server.
func (a *API) Run() {
	port := fmt.Sprintf(":%d", a.config.Port)
	path := a.config.GetPrefix()
	log.Debug().Str("port", port).Str("prefix", path).Msg("Starting API server")

	if err := http.ListenAndServe(port, a); err != nil {
		log.Fatal().Err(err).Msg("Starting API server")
	}
}

// ServeHTTP serves the API requests.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// RegisterRoute registers a new handler at the given path, relative to the
// API's prefix. Every route is guarded by the configured IP filter.
func (a *API) RegisterRoute(method string, path string, handler http.HandlerFunc) {
	a.router.HandleFunc(path, a.filter.Wrap(handler)).Methods(method)
}

// RegisterKeystore registers the operator-facing key-bundle admin routes.
func (a *API) RegisterKeystore(s *server.Server) {
	a.RegisterRoute(http.MethodPost, "/keys/invalidate", s.InvalidateHandler)
}

func (a *API) createRoutes() {
	a.RegisterRoute(http.MethodGet, "/version", version.Handler)
}
