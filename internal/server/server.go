/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server hosts the browser windows. Every websocket is one window
// with its own deck session; all windows share one slot.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"portraitdeck/internal/deck"
	"portraitdeck/internal/domain"
	"portraitdeck/internal/history"
	"portraitdeck/internal/imaging"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/render"
	"portraitdeck/internal/slot"
	"portraitdeck/internal/windows"
)

// Options configures a Server.
type Options struct {
	Addr           string
	Slot           slot.Slot
	StorageKey     string // defaults to domain.StorageKey
	Normalizer     *imaging.Normalizer
	History        history.Config
	Concurrency    int   // parallel image decodes per upload
	MaxUploadBytes int64 // request body cap for uploads and imports
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Renderer       *render.Renderer
}

var errServerClosed = errors.New("server closed")

// DefaultMaxUploadBytes caps an upload request at 64 MiB.
const DefaultMaxUploadBytes = 64 << 20

// Server owns the routes, the window table and the satellite registry.
type Server struct {
	opts     Options
	router   *mux.Router
	registry *windows.Registry
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu       sync.Mutex
	windows  map[string]*window
	reserved map[string]struct{} // ids handed out but not yet added
	closed   bool

	httpSrv *http.Server
}

// New builds a Server. opts.Slot is required.
func New(opts Options) (*Server, error) {
	if opts.Slot == nil {
		return nil, errors.New("server: slot is required")
	}
	if opts.StorageKey == "" {
		opts.StorageKey = domain.StorageKey
	}
	if opts.Normalizer == nil {
		opts.Normalizer = imaging.New()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Renderer == nil {
		r, err := render.New()
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
	}
	s := &Server{
		opts:     opts,
		registry: windows.NewRegistry(),
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 16384},
		log:      applog.WithComponent("server"),
		windows:  make(map[string]*window),
		reserved: make(map[string]struct{}),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the satellite registry.
func (s *Server) Registry() *windows.Registry { return s.registry }

// WindowCount reports the number of connected windows.
func (s *Server) WindowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- s.httpSrv.Serve(ln) }()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))
	select {
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close disconnects every window. Hijacked websocket connections are not
// covered by http.Server.Shutdown.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	open := make([]*window, 0, len(s.windows))
	for _, w := range s.windows {
		open = append(open, w)
	}
	s.mu.Unlock()
	for _, w := range open {
		w.close()
	}
}

// reserveID picks the id for a new window: the one a reconnecting page
// presents when it is well formed and free, a fresh one otherwise. The id
// stays taken until add.
func (s *Server) reserveID(prev string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", errServerClosed
	}
	id := ""
	if _, err := uuid.Parse(prev); err == nil && !s.takenLocked(prev) {
		id = prev
	}
	for id == "" || s.takenLocked(id) {
		id = uuid.NewString()
	}
	s.reserved[id] = struct{}{}
	return id, nil
}

func (s *Server) takenLocked(id string) bool {
	if _, ok := s.windows[id]; ok {
		return true
	}
	_, ok := s.reserved[id]
	return ok
}

// add publishes a fully built window under its reserved id.
func (s *Server) add(w *window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, w.id)
	if s.closed {
		return errServerClosed
	}
	s.windows[w.id] = w
	return nil
}

func (s *Server) remove(w *window) {
	s.mu.Lock()
	if s.windows[w.id] == w {
		delete(s.windows, w.id)
	}
	s.mu.Unlock()
	if kind, ok := satelliteKind(w.role); ok {
		s.registry.Unregister(kind, w)
	} else if w.unloading.Load() {
		s.registry.Forget(w.id)
	}
}

func (s *Server) window(id string) (*window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	return w, ok
}

func satelliteKind(r deck.Role) (windows.Kind, bool) {
	switch r {
	case deck.RoleDisplay:
		return windows.Display, true
	case deck.RoleRemote:
		return windows.Remote, true
	default:
		return "", false
	}
}
