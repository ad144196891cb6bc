/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"portraitdeck/internal/deck"
	"portraitdeck/internal/history"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/mirror"
	"portraitdeck/internal/storage"
	"portraitdeck/internal/windows"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 << 10
	outboxSize     = 32
)

// Frame types sent to the page besides window directives.
const (
	FrameHello    = "hello"
	FrameRender   = "render"
	FrameAlert    = "alert"
	FrameDownload = "download"
)

// Frame is a server-to-page message.
type Frame struct {
	Type     string          `json:"type"`
	WindowID string          `json:"windowId,omitempty"`
	Role     deck.Role       `json:"role,omitempty"`
	HTML     string          `json:"html,omitempty"`
	Focus    *deck.FocusHint `json:"focus,omitempty"`
	Message  string          `json:"message,omitempty"`
	URL      string          `json:"url,omitempty"`
	Filename string          `json:"filename,omitempty"`
}

var errWindowClosed = errors.New("window closed")

// window is one connected page.
type window struct {
	id       string
	role     deck.Role
	base     string
	origin   windows.Origin
	conn     *websocket.Conn
	session  *deck.Session
	listener *mirror.Listener
	srv      *Server
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outbox chan any
	notify chan struct{}

	mu      sync.Mutex
	pending *deck.State
	alerts  []string

	// unloading is set when the page itself is going away, as opposed to
	// a dropped connection that will reconnect with the same id.
	unloading atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// Send delivers a directive to the page. It implements windows.Satellite.
func (w *window) Send(d windows.Directive) error { return w.enqueue(d) }

func (w *window) enqueue(v any) error {
	select {
	case <-w.done:
		return errWindowClosed
	default:
	}
	select {
	case w.outbox <- v:
		return nil
	case <-w.done:
		return errWindowClosed
	default:
		return errors.New("window outbox full")
	}
}

// onRender runs under the session lock. It only records the newest state and
// wakes the writer; alerts are queued so none is lost to coalescing.
func (w *window) onRender(st deck.State) {
	w.mu.Lock()
	w.pending = &st
	if st.View.Alert != "" {
		w.alerts = append(w.alerts, st.View.Alert)
	}
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *window) takePending() (*deck.State, []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, alerts := w.pending, w.alerts
	w.pending, w.alerts = nil, nil
	return st, alerts
}

func (w *window) close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.cancel()
		if w.listener != nil {
			w.listener.Stop()
		}
		_ = w.conn.Close()
	})
}

func (w *window) write(v any) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

// writePump is the only writer on the connection.
func (w *window) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.close()
	}()
	for {
		select {
		case <-w.done:
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case v := <-w.outbox:
			if err := w.write(v); err != nil {
				w.log.Debug("write failed", slog.Any("err", err))
				return
			}
		case <-w.notify:
			st, alerts := w.takePending()
			if st != nil {
				html, err := w.srv.opts.Renderer.Render(*st, w.base)
				if err != nil {
					w.log.Error("render failed", slog.Any("err", err))
				} else if err := w.write(Frame{Type: FrameRender, HTML: html, Focus: st.View.Focus}); err != nil {
					w.log.Debug("write failed", slog.Any("err", err))
					return
				}
			}
			for _, msg := range alerts {
				if err := w.write(Frame{Type: FrameAlert, Message: msg}); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads actions until the page goes away.
func (w *window) readPump() {
	defer w.close()
	w.conn.SetReadLimit(maxMessageSize)
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var a Action
		if err := w.conn.ReadJSON(&a); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.log.Debug("connection lost", slog.Any("err", err))
			}
			return
		}
		_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
		w.dispatch(a)
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/"
}

func originFromQuery(r *http.Request) windows.Origin {
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		return windows.Origin{}
	}
	return windows.Origin{X: x, Y: y, Known: true}
}

// handleWS upgrades the request and runs one window until it disconnects.
func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}
	role := deck.ParseRole(r.URL.Query().Get("view"))
	id, err := s.reserveID(r.URL.Query().Get("id"))
	if err != nil {
		_ = conn.Close()
		return
	}
	ctx, cancel := context.WithCancel(applog.ContextWithWindow(context.Background(), id))
	w := &window{
		id:     id,
		role:   role,
		base:   baseURL(r),
		origin: originFromQuery(r),
		conn:   conn,
		srv:    s,
		log:    applog.WithComponent("window").With(slog.String("window", id), slog.String("role", string(role))),
		ctx:    ctx,
		cancel: cancel,
		outbox: make(chan any, outboxSize),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	store := storage.NewDeckStore(s.opts.Slot, storage.Options{
		Key:      s.opts.StorageKey,
		Origin:   id,
		ReadOnly: role == deck.RoleDisplay,
	})
	var hist *history.Manager
	if role == deck.RoleControl {
		hist = history.NewManager(s.opts.History)
	}
	w.session = deck.NewSession(ctx, deck.Options{
		WindowID:    id,
		Role:        role,
		Store:       store,
		Normalizer:  s.opts.Normalizer,
		History:     hist,
		Concurrency: s.opts.Concurrency,
		OnRender:    w.onRender,
	})
	w.listener = mirror.New(store.Subscribe(), w.session)
	// Published only once the session exists; HTTP handlers look windows up.
	if err := s.add(w); err != nil {
		w.close()
		return
	}
	defer s.remove(w)
	go w.listener.Run(ctx)

	_ = w.enqueue(Frame{Type: FrameHello, WindowID: id, Role: role})
	go w.writePump()
	w.session.Render()

	if kind, ok := satelliteKind(role); ok {
		s.registry.Register(kind, w)
	} else {
		s.autoOpen(w)
		go func() {
			if _, err := w.session.SweepImages(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Warn("stored image sweep stopped", slog.Any("err", err))
			}
		}()
	}
	w.log.Info("window connected")
	w.readPump()
	w.log.Info("window disconnected")
}

// autoOpen asks a new control window to pop out the display and the remote,
// once per control window.
func (s *Server) autoOpen(w *window) {
	for _, kind := range []windows.Kind{windows.Display, windows.Remote} {
		if !s.registry.AutoOpen(w.id, kind) {
			continue
		}
		if d, open := s.registry.Ensure(kind, w.base, w.origin, false); open {
			_ = w.enqueue(d)
		}
	}
}
