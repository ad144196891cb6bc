/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package mirror

import (
	"context"
	"sync"
	"testing"
	"time"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/feed"
)

type fakeTarget struct {
	mu       sync.Mutex
	deck     domain.Deck
	replaced int
	applied  chan struct{}
}

func newFakeTarget(d domain.Deck) *fakeTarget {
	return &fakeTarget{deck: d, applied: make(chan struct{}, 8)}
}

func (f *fakeTarget) Replace(next func(domain.Deck) domain.Deck) {
	f.mu.Lock()
	f.deck = next(f.deck)
	f.replaced++
	f.mu.Unlock()
	f.applied <- struct{}{}
}

func (f *fakeTarget) snapshot() (domain.Deck, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deck, f.replaced
}

func threeSlides() domain.Deck {
	return domain.Deck{Slides: []domain.Slide{
		domain.NewTextSlide(domain.TextSlide{SlideMeta: domain.SlideMeta{ID: "a"}, Title: "A"}),
		domain.NewTextSlide(domain.TextSlide{SlideMeta: domain.SlideMeta{ID: "b"}, Title: "B"}),
		domain.NewTextSlide(domain.TextSlide{SlideMeta: domain.SlideMeta{ID: "c"}, Title: "C"}),
	}, CurrentIndex: 2}
}

func TestHandleIgnoresMalformedAndRemovals(t *testing.T) {
	target := newFakeTarget(threeSlides())
	l := New(feed.NewHub().Subscribe("k", "me"), target)
	for _, c := range []feed.Change{
		{Key: "k", Removed: true, Origin: "x"},
		{Key: "k", Value: []byte(`{broken`), Origin: "x"},
		{Key: "k", Value: []byte(`{"slides":"nope"}`), Origin: "x"},
		{Key: "k", Value: []byte(`[1,2]`), Origin: "x"},
	} {
		if l.Handle(c) {
			t.Fatalf("change %+v must be ignored", c)
		}
	}
	d, n := target.snapshot()
	if n != 0 || d.Len() != 3 || d.CurrentIndex != 2 {
		t.Fatalf("target touched: replaced=%d deck=%+v", n, d)
	}
}

func TestHandleReplacesDeckAndClampsIndex(t *testing.T) {
	target := newFakeTarget(threeSlides())
	l := New(feed.NewHub().Subscribe("k", "me"), target)

	// Payload without an index keeps the current one, clamped to the new length.
	if !l.Handle(feed.Change{Key: "k", Value: []byte(`{"slides":[{"id":"x","type":"text","title":"X"},{"id":"y","type":"text","title":"Y"}]}`), Origin: "w2"}) {
		t.Fatalf("valid payload ignored")
	}
	d, _ := target.snapshot()
	if d.Len() != 2 || d.CurrentIndex != 1 || d.Slides[0].Meta().ID != "x" {
		t.Fatalf("unexpected deck %+v", d)
	}

	// A numeric index wins.
	l.Handle(feed.Change{Key: "k", Value: []byte(`{"slides":[{"id":"x","type":"text"},{"id":"y","type":"text"}],"currentIndex":0}`), Origin: "w2"})
	if d, _ = target.snapshot(); d.CurrentIndex != 0 {
		t.Fatalf("index=%d want 0", d.CurrentIndex)
	}

	// An empty deck resets the index.
	l.Handle(feed.Change{Key: "k", Value: []byte(`{"slides":[],"currentIndex":4}`), Origin: "w2"})
	if d, _ = target.snapshot(); d.Len() != 0 || d.CurrentIndex != 0 {
		t.Fatalf("empty deck: %+v", d)
	}
}

func TestRunFollowsHubUntilStopped(t *testing.T) {
	hub := feed.NewHub()
	target := newFakeTarget(domain.Deck{})
	l := New(hub.Subscribe("k", "me"), target)
	go l.Run(context.Background())

	hub.Publish(feed.Change{Key: "k", Value: []byte(`{"slides":[{"id":"a","type":"text","title":"A"}],"currentIndex":0}`), Origin: "other"})
	select {
	case <-target.applied:
	case <-time.After(2 * time.Second):
		t.Fatalf("change not applied")
	}
	// Own writes never arrive.
	hub.Publish(feed.Change{Key: "k", Value: []byte(`{"slides":[]}`), Origin: "me"})
	select {
	case <-target.applied:
		t.Fatalf("own write applied")
	case <-time.After(50 * time.Millisecond):
	}

	l.Stop()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Stop")
	}
	if d, _ := target.snapshot(); d.Len() != 1 {
		t.Fatalf("deck=%+v", d)
	}
}

func TestRunEndsWithContext(t *testing.T) {
	target := newFakeTarget(domain.Deck{})
	l := New(feed.NewHub().Subscribe("k", "me"), target)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Run ignored cancellation")
	}
}
