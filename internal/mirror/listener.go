/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mirror keeps a window's deck in step with writes made by the other
// windows sharing the slot.
package mirror

import (
	"context"
	"log/slog"
	"sync"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/feed"
	applog "portraitdeck/internal/log"
)

// Target is the window session a listener updates. Replace must run next under
// the session's lock, adopt its result as the deck, repair the selection and
// re-render without persisting.
type Target interface {
	Replace(next func(current domain.Deck) domain.Deck)
}

// Listener applies foreign deck snapshots to a Target.
type Listener struct {
	sub    *feed.Subscription
	target Target
	log    *slog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// New binds sub to target. Call Run (usually in a goroutine) to start applying changes.
func New(sub *feed.Subscription, target Target) *Listener {
	return &Listener{
		sub:    sub,
		target: target,
		log:    applog.WithComponent("mirror"),
		done:   make(chan struct{}),
	}
}

// Run applies changes until ctx ends, Stop is called or the feed closes.
func (l *Listener) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.sub.Close()
			return
		case c, ok := <-l.sub.C:
			if !ok {
				return
			}
			l.Handle(c)
		}
	}
}

// Stop closes the subscription, which ends Run.
func (l *Listener) Stop() {
	l.stopOnce.Do(l.sub.Close)
}

// Done is closed when Run returns.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Handle applies one change and reports whether the deck was replaced.
// Removals and payloads that do not decode to a deck are ignored.
func (l *Listener) Handle(c feed.Change) bool {
	if c.Removed || c.Value == nil {
		return false
	}
	snap, err := domain.ParseSnapshot(c.Value)
	if err != nil {
		l.log.Debug("ignoring unreadable deck update", slog.String("origin", c.Origin), slog.Any("err", err))
		return false
	}
	l.target.Replace(func(current domain.Deck) domain.Deck {
		next := snap.Deck
		if !snap.IndexPresent {
			next.CurrentIndex = current.CurrentIndex
		}
		next.Clamp()
		return next
	})
	l.log.Debug("applied deck update", slog.String("origin", c.Origin), slog.Int("slides", snap.Deck.Len()))
	return true
}
