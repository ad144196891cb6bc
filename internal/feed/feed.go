/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package feed delivers slot mutations to every window except the one that
// made them, the way a browser fires storage events in sibling tabs only.
package feed

import (
	"sync"
)

// OriginExternal marks changes made outside this process.
const OriginExternal = "external"

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

// Change is one mutation of a slot key. Value is nil when Removed is set.
type Change struct {
	Key     string
	Value   []byte
	Removed bool
	Origin  string // id of the writing window
}

// Feed hands out subscriptions for a key.
type Feed interface {
	Subscribe(key, subscriberID string) *Subscription
}

// Subscription receives changes on C until Close is called.
type Subscription struct {
	C <-chan Change

	ch     chan Change
	key    string
	id     string
	hub    *Hub
	closed bool
}

// Close stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// Hub is an in-process Feed. Publish never blocks: when a subscriber falls
// behind, its oldest queued change is discarded, which is harmless because
// every change carries the full value and the newest one wins.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: DefaultBuffer}
}

// Subscribe registers subscriberID for changes to key. Changes whose Origin
// equals subscriberID are not delivered to it.
func (h *Hub) Subscribe(key, subscriberID string) *Subscription {
	ch := make(chan Change, h.buffer)
	s := &Subscription{C: ch, ch: ch, key: key, id: subscriberID, hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s)
	close(s.ch)
}

// Publish fans c out to the subscribers of c.Key other than its origin.
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.key != c.Key || (c.Origin != "" && s.id == c.Origin) {
			continue
		}
		deliver(s.ch, c)
	}
}

func deliver(ch chan Change, c Change) {
	for {
		select {
		case ch <- c:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.closed = true
		close(s.ch)
		delete(h.subs, s)
	}
}
