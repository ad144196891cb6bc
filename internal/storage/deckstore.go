/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/feed"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/slot"
)

// Operator-facing texts for failed saves.
const (
	StorageErrorMessage = "This deck is too large for auto-save. Export a JSON backup or remove some heavy image slides to stay under your browser's limit."
	QuotaAlertMessage   = "Your browser ran out of local storage while saving this deck. Export a JSON backup or remove some large image slides, then try again."
)

// ErrorKind classifies a failed save.
type ErrorKind string

const (
	KindQuota  ErrorKind = "quota"
	KindWrite  ErrorKind = "write"
	KindEncode ErrorKind = "encode"
)

// StorageError is returned by Save. The in-memory deck is never touched by a
// failed save, so the caller can keep working and offer an export.
type StorageError struct {
	Kind    ErrorKind
	Message string // banner text
	Alert   bool   // true for the first quota failure of this store only
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("save deck (%s): %v", e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Options configures a DeckStore.
type Options struct {
	Key      string // defaults to domain.StorageKey
	Origin   string // window id stamped on writes
	ReadOnly bool   // display windows never write
}

// DeckStore persists one window's view of the deck in the shared slot.
type DeckStore struct {
	slot     slot.Slot
	key      string
	origin   string
	readOnly bool
	log      *slog.Logger

	mu           sync.Mutex
	quotaAlerted bool
}

// NewDeckStore binds a store to s.
func NewDeckStore(s slot.Slot, opts Options) *DeckStore {
	key := opts.Key
	if key == "" {
		key = domain.StorageKey
	}
	return &DeckStore{
		slot:     s,
		key:      key,
		origin:   opts.Origin,
		readOnly: opts.ReadOnly,
		log:      applog.WithComponent("storage").With(slog.String("key", key)),
	}
}

// Key returns the slot key.
func (d *DeckStore) Key() string { return d.key }

// ReadOnly reports whether Save skips writing.
func (d *DeckStore) ReadOnly() bool { return d.readOnly }

// Load reads the persisted deck. Missing or malformed snapshots yield an
// empty deck; the reason is logged, never returned.
func (d *DeckStore) Load(ctx context.Context) domain.Deck {
	l := applog.WithOperation(d.log, "load")
	raw, ok, err := d.slot.Get(ctx, d.key)
	if err != nil {
		l.Warn("read saved deck failed; starting fresh", slog.Any("err", err))
		return domain.Deck{}
	}
	if !ok || len(raw) == 0 {
		return domain.Deck{}
	}
	snap, err := domain.ParseSnapshot(raw)
	if err != nil {
		l.Warn("failed to parse saved deck; starting fresh", slog.Any("err", err))
		return domain.Deck{}
	}
	if snap.Dropped > 0 {
		l.Warn("dropped malformed slides", slog.Int("count", snap.Dropped))
	}
	return snap.Deck
}

// Save writes the full deck. Read-only stores report success without writing.
func (d *DeckStore) Save(ctx context.Context, deck domain.Deck) error {
	if d.readOnly {
		return nil
	}
	l := applog.WithOperation(d.log, "save")
	data, err := domain.EncodeSnapshot(deck)
	if err != nil {
		l.Warn("unable to encode deck", slog.Any("err", err))
		return &StorageError{Kind: KindEncode, Message: StorageErrorMessage, Err: err}
	}
	if err := d.slot.Set(ctx, d.key, data, d.origin); err != nil {
		l.Warn("unable to save deck state", slog.Any("err", err), slog.Int("bytes", len(data)))
		se := &StorageError{Kind: KindWrite, Message: StorageErrorMessage, Err: err}
		if slot.IsQuotaError(err) {
			se.Kind = KindQuota
			d.mu.Lock()
			if !d.quotaAlerted {
				d.quotaAlerted = true
				se.Alert = true
			}
			d.mu.Unlock()
		}
		return se
	}
	return nil
}

// Reset removes the persisted deck.
func (d *DeckStore) Reset(ctx context.Context) error {
	if err := d.slot.Remove(ctx, d.key, d.origin); err != nil {
		return fmt.Errorf("reset deck storage: %w", err)
	}
	return nil
}

// Subscribe returns notifications for the deck key written by other windows.
func (d *DeckStore) Subscribe() *feed.Subscription {
	return d.slot.Subscribe(d.key, d.origin)
}

// IsStorageError extracts a *StorageError from err.
func IsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
