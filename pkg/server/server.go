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
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kacheio/keysched/pkg/cluster"
	"github.com/kacheio/keysched/pkg/config"
	"github.com/kacheio/keysched/pkg/keystore"
	"github.com/kacheio/keysched/pkg/server/middleware"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout                = 30 * time.Second
	ServerGracefulShutdownTimeout = 5 * time.Second
)

// Server is the keys-query HTTP façade in front of a keystore.Store.
type Server struct {
	cfg *config.Configuration

	router http.Handler
	store  *keystore.Store

	// cluster holds a cluster connection, used to broadcast invalidations.
	cluster cluster.Connection

	// listeners holds the downstream listeners.
	listeners Listeners

	stopCh chan bool
}

// NewServer creates a new configured server.
func NewServer(cfg *config.Configuration, store *keystore.Store) (*Server, error) {
	srv := &Server{
		cfg:    cfg,
		store:  store,
		stopCh: make(chan bool, 1),
	}

	if cfg.Cluster != nil {
		cc, err := cluster.NewConnection(cfg.Cluster)
		if err != nil {
			return nil, err
		}
		srv.cluster = cc
	}

	r := mux.NewRouter()
	r.HandleFunc("/v1/keys/query", srv.QueryHandler).Methods(http.MethodPost)
	r.HandleFunc("/internal/v1/keys/invalidate", srv.InvalidateHandler).Methods(http.MethodPost)
	srv.router = middleware.NewCoalesced(r)

	listeners, err := NewListeners(cfg.Listeners, srv)
	if err != nil {
		return nil, err
	}
	srv.listeners = listeners

	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeout := DefaultTimeout
	http.TimeoutHandler(
		s.router,
		timeout,
		fmt.Sprintf("Request timeout after %v", timeout),
	).ServeHTTP(w, r)
}

// Start starts the server.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		logger := log.Ctx(ctx)
		logger.Info().Msg("Received shutdown...")
		logger.Info().Msg("Stopping server gracefully")
		s.Stop()
	}()

	log.Debug().Msg("Starting server ...")

	s.listeners.Start()
}

// Await blocks until SIGTERM or Stop() is called.
func (s *Server) Await() {
	<-s.stopCh
}

// Stop stops the server.
func (s *Server) Stop() {
	defer log.Info().Msg("Server stopped")

	s.listeners.Stop()
	s.store.Close()

	s.stopCh <- true
}

// Shutdown the server, gracefully. Should be defered after Start().
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), ServerGracefulShutdownTimeout)
	defer cancel()

	go func(ctx context.Context) {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			panic("shutdown timeout exceeded, killing keysched instance")
		}
	}(ctx)

	close(s.stopCh)
}
