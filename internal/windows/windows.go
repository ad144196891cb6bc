/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package windows tracks the satellite display and remote windows a control
// window opens, and tells the control window whether to open a new popup or
// redirect the one already running.
package windows

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"portraitdeck/internal/domain"
	applog "portraitdeck/internal/log"
)

// Kind names a satellite role.
type Kind string

const (
	Display Kind = "display"
	Remote  Kind = "remote"
)

// Popup window names. Browsers reuse a window with the same name.
const (
	DisplayName = "obsPortraitDisplay"
	RemoteName  = "obsPortraitRemote"
)

const (
	RemoteWidth  = 720
	RemoteHeight = 320
)

var displayFeatures = []string{
	"popup=1",
	fmt.Sprintf("width=%d", domain.StageWidth),
	fmt.Sprintf("height=%d", domain.StageHeight),
	"resizable=yes",
	"scrollbars=no",
	"toolbar=0",
	"location=0",
	"status=0",
	"menubar=0",
}

var remoteFeatures = []string{
	"popup=1",
	"resizable=yes",
	"scrollbars=no",
	"toolbar=0",
	"location=0",
	"status=0",
	"menubar=0",
	fmt.Sprintf("width=%d", RemoteWidth),
	fmt.Sprintf("height=%d", RemoteHeight),
}

// Blocked banner texts.
const (
	DisplayBlockedMessage = `Your browser blocked the stage window. Click "Open display window" above to launch it manually.`
	RemoteBlockedMessage  = `Your browser blocked the quick remote. Click "Open mini remote" above to pop it out.`
)

// Origin is the control window's screen position, when the client knows it.
type Origin struct {
	X, Y  int
	Known bool
}

// Features returns the window.open feature string for kind, offset from the
// control window.
func Features(kind Kind, o Origin) string {
	var base []string
	var left, top int
	switch kind {
	case Remote:
		base = remoteFeatures
		left, top = 160, 120
		if o.Known {
			left, top = max(0, o.X+80), max(0, o.Y+120)
		}
	default:
		base = displayFeatures
		left, top = 120, 80
		if o.Known {
			left, top = max(0, o.X+60), max(0, o.Y+40)
		}
	}
	parts := append(append([]string{}, base...), fmt.Sprintf("left=%d", left), fmt.Sprintf("top=%d", top))
	return strings.Join(parts, ",")
}

// Name returns the popup name for kind.
func Name(kind Kind) string {
	if kind == Remote {
		return RemoteName
	}
	return DisplayName
}

// Size returns the window size for kind.
func Size(kind Kind) (int, int) {
	if kind == Remote {
		return RemoteWidth, RemoteHeight
	}
	return domain.StageWidth, domain.StageHeight
}

// URL returns base with its query and fragment replaced by view=kind.
func URL(base string, kind Kind) string {
	u, err := url.Parse(base)
	if err != nil {
		return "?view=" + string(kind)
	}
	u.RawQuery = url.Values{"view": {string(kind)}}.Encode()
	u.Fragment = ""
	return u.String()
}

// Directive types sent to browser windows.
const (
	DirectiveOpen    = "open"
	DirectiveRefocus = "refocus"
)

// Directive asks a window to open a popup or to reload itself at URL.
type Directive struct {
	Type     string `json:"type"`
	Kind     Kind   `json:"kind"`
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	Features string `json:"features,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Focus    bool   `json:"focus,omitempty"`
}

// Satellite is a live connection to an open display or remote window.
type Satellite interface {
	Send(d Directive) error
}

// Registry remembers which satellites are open. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	live     map[Kind]Satellite
	autoOpen map[string]map[Kind]bool // control window id -> attempted
	log      *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		live:     make(map[Kind]Satellite),
		autoOpen: make(map[string]map[Kind]bool),
		log:      applog.WithComponent("windows"),
	}
}

// Register records sat as the open window for kind, replacing any previous one.
func (r *Registry) Register(kind Kind, sat Satellite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[kind] = sat
}

// Unregister forgets sat if it is still the registered window for kind.
func (r *Registry) Unregister(kind Kind, sat Satellite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live[kind] == sat {
		delete(r.live, kind)
	}
}

// Live reports whether a window of kind is open.
func (r *Registry) Live(kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[kind] != nil
}

// Ensure makes sure a window of kind exists. When one is open it is sent a
// refocus directive and ok is false. Otherwise the returned open directive
// must be executed by the requesting control window.
func (r *Registry) Ensure(kind Kind, base string, o Origin, focus bool) (d Directive, ok bool) {
	w, h := Size(kind)
	target := URL(base, kind)
	r.mu.Lock()
	sat := r.live[kind]
	r.mu.Unlock()
	if sat != nil {
		d = Directive{Type: DirectiveRefocus, Kind: kind, URL: target, Width: w, Height: h, Focus: focus}
		err := sat.Send(d)
		if err == nil {
			return d, false
		}
		r.log.Warn("unable to refresh satellite window", slog.String("kind", string(kind)), slog.Any("err", err))
		r.Unregister(kind, sat)
	}
	return Directive{
		Type:     DirectiveOpen,
		Kind:     kind,
		URL:      target,
		Name:     Name(kind),
		Features: Features(kind, o),
		Width:    w,
		Height:   h,
		Focus:    focus,
	}, true
}

// AutoOpen reports whether control window id should try opening kind
// automatically. It returns true once per control window and kind.
func (r *Registry) AutoOpen(controlID string, kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.autoOpen[controlID]
	if m == nil {
		m = make(map[Kind]bool)
		r.autoOpen[controlID] = m
	}
	if m[kind] {
		return false
	}
	m[kind] = true
	return true
}

// Forget drops bookkeeping for a closed control window.
func (r *Registry) Forget(controlID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.autoOpen, controlID)
}
