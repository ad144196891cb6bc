/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package history keeps undo and redo stacks of deck snapshots for one
// control window.
package history

import (
	"sync"
	"time"

	"portraitdeck/internal/domain"
)

// Entry is a deck state that Undo can return to. Tag names the kind of edit
// that produced the following state; equal non-empty tags coalesce.
type Entry struct {
	Deck domain.Deck
	Tag  string
	TS   time.Time
	size int
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap on the undo stack; oldest entries are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits the number of undo entries (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces pushes with the same tag captured within the interval.
	MinInterval time.Duration
}

// Manager provides undo/redo over whole-deck snapshots. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex

	undo       []Entry
	redo       []Entry
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 64 * 1024 * 1024 // 64 MiB; image slides are large
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 800 * time.Millisecond
	}
	return &Manager{cfg: cfg}
}

// Push records prev, the deck as it was before a mutation. When tag is not
// empty and matches the previous push within MinInterval, the older entry is
// kept so one Undo reverts the whole run of edits. Any push clears redo.
func (m *Manager) Push(prev domain.Deck, tag string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redo = nil
	if n := len(m.undo); n > 0 && tag != "" {
		last := &m.undo[n-1]
		if last.Tag == tag && now.Sub(last.TS) < m.cfg.MinInterval {
			last.TS = now
			return
		}
	}
	e := Entry{Deck: prev.Clone(), Tag: tag, TS: now, size: Size(prev)}
	m.undo = append(m.undo, e)
	m.totalBytes += e.size
	m.enforceCapsLocked()
}

// Undo returns the previous deck and remembers current for Redo.
func (m *Manager) Undo(current domain.Deck) (domain.Deck, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.undo)
	if n == 0 {
		return domain.Deck{}, false
	}
	e := m.undo[n-1]
	m.undo = m.undo[:n-1]
	m.totalBytes -= e.size
	m.redo = append(m.redo, Entry{Deck: current.Clone(), TS: time.Now(), size: Size(current)})
	return e.Deck.Clone(), true
}

// Redo reapplies the most recently undone state.
func (m *Manager) Redo(current domain.Deck) (domain.Deck, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.redo)
	if n == 0 {
		return domain.Deck{}, false
	}
	e := m.redo[n-1]
	m.redo = m.redo[:n-1]
	back := Entry{Deck: current.Clone(), TS: time.Now(), size: Size(current)}
	m.undo = append(m.undo, back)
	m.totalBytes += back.size
	m.enforceCapsLocked()
	return e.Deck.Clone(), true
}

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo, m.redo, m.totalBytes = nil, nil, 0
}

// CanUndo reports whether Undo has an entry.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 0
}

// CanRedo reports whether Redo has an entry.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes, undoDepth, redoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes, len(m.undo), len(m.redo)
}

func (m *Manager) enforceCapsLocked() {
	if m.cfg.MaxDepth > 0 && len(m.undo) > m.cfg.MaxDepth {
		toDrop := len(m.undo) - m.cfg.MaxDepth
		for i := 0; i < toDrop; i++ {
			m.totalBytes -= m.undo[i].size
		}
		m.undo = append([]Entry{}, m.undo[toDrop:]...)
	}
	// Keep at least the newest entry even if it alone exceeds the budget.
	for len(m.undo) > 1 && m.totalBytes > m.cfg.MaxBytes {
		m.totalBytes -= m.undo[0].size
		m.undo = m.undo[1:]
	}
}

// Size estimates the memory held by a deck snapshot.
func Size(d domain.Deck) int {
	n := 0
	for _, s := range d.Slides {
		meta := s.Meta()
		n += len(meta.ID) + len(meta.Label) + 16
		switch v := s.(type) {
		case *domain.TextSlide:
			n += len(v.Title) + len(v.Body) + len(v.Footnote) + len(v.Eyebrow) + len(v.Background) + len(v.TextColor)
		case *domain.ImageSlide:
			n += len(v.ImageData)
		}
	}
	return n
}
