/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package deck is the mutation engine of one browser window. A Session owns
// that window's copy of the deck and its view state, applies operations
// allowed by the window's role, persists the result through a DeckStore and
// asks the window to re-render.
package deck

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/history"
	"portraitdeck/internal/imaging"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/storage"
)

// Role is what a window renders as.
type Role string

const (
	RoleControl Role = "control"
	RoleDisplay Role = "display"
	RoleRemote  Role = "remote"
)

// ParseRole maps a ?view= value to a role. Anything unknown is control.
func ParseRole(v string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(v))) {
	case RoleDisplay:
		return RoleDisplay
	case RoleRemote:
		return RoleRemote
	default:
		return RoleControl
	}
}

// FocusHint tells the control view which editor input to focus after a
// re-render, and where the caret was.
type FocusHint struct {
	SlideID string `json:"slideId"`
	Field   string `json:"field"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// View is per-window state that is never persisted.
type View struct {
	SelectedID      string
	ReplaceTargetID string
	Focus           *FocusHint
	Filter          string
	DragActive      bool
	DisplayBlocked  bool
	RemoteBlocked   bool
	StorageError    string
	Alert           string // one-shot; cleared once rendered
}

// State is what a render hook receives.
type State struct {
	WindowID string
	Role     Role
	Deck     domain.Deck
	View     View
	CanUndo  bool
	CanRedo  bool
}

// Options configures a Session.
type Options struct {
	WindowID    string
	Role        Role
	Store       *storage.DeckStore
	Normalizer  *imaging.Normalizer
	History     *history.Manager // control windows only; nil disables undo
	Concurrency int              // parallel image decodes; 0 means 4
	// OnRender is called with the new state after every change. It runs
	// under the session lock and must not call back into the Session.
	OnRender func(State)
	Now      func() time.Time
}

// Session is one window's deck and view state. Its methods are safe for
// concurrent use; they are serialised the way a browser's event loop would.
type Session struct {
	mu       sync.Mutex
	id       string
	role     Role
	deck     domain.Deck
	view     View
	store    *storage.DeckStore
	norm     *imaging.Normalizer
	hist     *history.Manager
	workers  int
	onRender func(State)
	now      func() time.Time
	log      *slog.Logger
}

// NewSession loads the persisted deck and selects the live slide.
func NewSession(ctx context.Context, opts Options) *Session {
	s := &Session{
		id:       opts.WindowID,
		role:     opts.Role,
		store:    opts.Store,
		norm:     opts.Normalizer,
		hist:     opts.History,
		workers:  opts.Concurrency,
		onRender: opts.OnRender,
		now:      opts.Now,
	}
	if s.role == "" {
		s.role = RoleControl
	}
	if s.norm == nil {
		s.norm = imaging.New()
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.role != RoleControl {
		s.hist = nil
	}
	s.log = applog.WithComponent("deck").With(slog.String("window", s.id), slog.String("role", string(s.role)))
	s.deck = s.store.Load(ctx)
	if live := s.deck.Live(); live != nil {
		s.view.SelectedID = live.Meta().ID
	}
	return s
}

// ID returns the window id.
func (s *Session) ID() string { return s.id }

// Role returns the window role.
func (s *Session) Role() Role { return s.role }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Deck returns a copy of the current deck.
func (s *Session) Deck() domain.Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck.Clone()
}

// Render re-runs the render hook without changing anything.
func (s *Session) Render() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderLocked()
}

func (s *Session) stateLocked() State {
	st := State{WindowID: s.id, Role: s.role, Deck: s.deck.Clone(), View: s.view}
	if s.view.Focus != nil {
		f := *s.view.Focus
		st.View.Focus = &f
	}
	if s.hist != nil {
		st.CanUndo, st.CanRedo = s.hist.CanUndo(), s.hist.CanRedo()
	}
	return st
}

func (s *Session) allow(op string, roles ...Role) error {
	for _, r := range roles {
		if s.role == r {
			return nil
		}
	}
	s.log.Debug("operation refused", slog.String("op", op))
	return ErrReadOnly
}

func (s *Session) controlOnly(op string) error { return s.allow(op, RoleControl) }

// recordLocked pushes the current deck onto the undo stack before a mutation.
func (s *Session) recordLocked(tag string) {
	if s.hist != nil {
		s.hist.Push(s.deck, tag, s.now())
	}
}

// persistAndRenderLocked clamps, saves and re-renders. Save failures become
// the storage banner and, once per store, an alert; the deck is kept.
func (s *Session) persistAndRenderLocked(ctx context.Context) {
	s.deck.Clamp()
	if s.deck.Len() == 0 {
		s.deck.CurrentIndex = 0
		s.view.SelectedID = ""
	}
	if err := s.store.Save(ctx, s.deck); err != nil {
		if se, ok := storage.IsStorageError(err); ok {
			s.view.StorageError = se.Message
			if se.Alert {
				s.view.Alert = storage.QuotaAlertMessage
			}
		} else {
			s.view.StorageError = storage.StorageErrorMessage
		}
	} else {
		s.view.StorageError = ""
	}
	s.renderLocked()
}

func (s *Session) renderLocked() {
	s.fixSelectionLocked()
	if s.onRender != nil {
		s.onRender(s.stateLocked())
	}
	s.view.Alert = ""
	s.view.Focus = nil
}

// fixSelectionLocked keeps the selection on a slide that exists and, while a
// search is active, is visible: the live slide, then the first candidate.
func (s *Session) fixSelectionLocked() {
	if s.deck.Len() == 0 {
		s.view.SelectedID = ""
		return
	}
	visible := s.deck.Visible(s.view.Filter)
	isVisible := func(i int) bool {
		for _, v := range visible {
			if v == i {
				return true
			}
		}
		return false
	}
	if s.view.SelectedID != "" {
		if i := s.deck.IndexOf(s.view.SelectedID); i >= 0 && isVisible(i) {
			return
		}
	}
	switch {
	case isVisible(s.deck.CurrentIndex):
		s.view.SelectedID = s.deck.At(s.deck.CurrentIndex).Meta().ID
	case len(visible) > 0:
		s.view.SelectedID = s.deck.At(visible[0]).Meta().ID
	default:
		s.view.SelectedID = ""
	}
}

// Replace swaps in a deck written by another window. It neither persists nor
// records history.
func (s *Session) Replace(next func(current domain.Deck) domain.Deck) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deck = next(s.deck.Clone())
	s.deck.Clamp()
	s.renderLocked()
}

// Alert queues a one-shot notice for the next render and renders.
func (s *Session) Alert(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Alert = msg
	s.renderLocked()
}
