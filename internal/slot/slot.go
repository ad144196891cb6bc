/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package slot implements the shared key-value slot every window reads and
// writes. Writes are tagged with the writing window's id and published on a
// feed so the other windows can follow along. Three backends exist: an
// in-memory map for a single server process, a directory of files watched
// with fsnotify, and an SQLite database polled for foreign revisions.
package slot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"portraitdeck/internal/feed"
)

// Slot is a small key-value store with change notification.
type Slot interface {
	feed.Feed
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key on behalf of origin. Writing the value a key
	// already holds is a no-op and publishes nothing.
	Set(ctx context.Context, key string, value []byte, origin string) error
	// Remove deletes key on behalf of origin. Removing a missing key publishes nothing.
	Remove(ctx context.Context, key, origin string) error
	Close() error
}

// ErrClosed is returned by operations on a closed slot.
var ErrClosed = errors.New("slot closed")

// Kinds accepted by Open.
const (
	KindMemory = "memory"
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Kind          string // memory, file or sqlite
	Path          string // directory for file, database path for sqlite
	Quota         int    // bytes; 0 disables the budget
	KeepBackups   int    // file: timestamped backups kept per key
	KeepRevisions int    // sqlite: revisions kept per key
	Watch         bool   // file: publish changes made by other processes
}

// Open builds the backend described by opts.
func Open(ctx context.Context, opts Options) (Slot, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindMemory:
		return NewMemory(opts.Quota), nil
	case KindFile:
		return OpenFile(FileOptions{Dir: opts.Path, Quota: opts.Quota, KeepBackups: opts.KeepBackups, Watch: opts.Watch})
	case KindSQLite:
		return OpenSQLite(ctx, SQLiteOptions{Path: opts.Path, Quota: opts.Quota, KeepRevisions: opts.KeepRevisions})
	default:
		return nil, fmt.Errorf("unknown slot kind %q", opts.Kind)
	}
}

func validKey(key string) error {
	if key == "" {
		return errors.New("slot key is required")
	}
	return nil
}
