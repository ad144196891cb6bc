/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package slot

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"portraitdeck/internal/feed"

	_ "modernc.org/sqlite"
)

func openTestSQLite(t *testing.T, path string, opts SQLiteOptions) *SQLite {
	t.Helper()
	opts.Path = path
	if opts.PollInterval == 0 {
		opts.PollInterval = -1
	}
	s, err := OpenSQLite(context.Background(), opts)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSlot(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "slot.sqlite"), SQLiteOptions{})
	exerciseSlot(t, s)
}

func TestSQLiteSlotQuota(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "slot.sqlite"), SQLiteOptions{Quota: 64})
	exerciseQuota(t, s)
}

func TestSQLiteRevisionsArePruned(t *testing.T) {
	s := openTestSQLite(t, filepath.Join(t.TempDir(), "slot.sqlite"), SQLiteOptions{KeepRevisions: 4})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := s.Set(ctx, "k", []byte(fmt.Sprintf("v%d", i)), "w"); err != nil {
			t.Fatalf("Set %d: %v", i, err)
		}
	}
	revs, err := s.Revisions(ctx, "k", 100)
	if err != nil {
		t.Fatalf("Revisions: %v", err)
	}
	if len(revs) != 4 {
		t.Fatalf("expected 4 revisions, got %d", len(revs))
	}
	if string(revs[0].Value) != "v9" || string(revs[3].Value) != "v6" {
		t.Fatalf("unexpected revision order: %q .. %q", revs[0].Value, revs[3].Value)
	}
	if revs[0].Origin != "w" {
		t.Fatalf("origin=%q", revs[0].Origin)
	}
}

func TestSQLitePollPublishesForeignWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.sqlite")
	a := openTestSQLite(t, path, SQLiteOptions{})
	b := openTestSQLite(t, path, SQLiteOptions{})
	ctx := context.Background()

	subA := a.Subscribe("k", "wa")
	defer subA.Close()

	if err := b.Set(ctx, "k", []byte("one"), "wb"); err != nil {
		t.Fatalf("b.Set: %v", err)
	}
	if err := b.Set(ctx, "k", []byte("two"), "wb"); err != nil {
		t.Fatalf("b.Set: %v", err)
	}
	// Local writes by a never come back through its own poll.
	if err := a.Set(ctx, "other", []byte("mine"), "wa"); err != nil {
		t.Fatalf("a.Set: %v", err)
	}
	if err := a.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	c := waitChange(t, subA)
	if string(c.Value) != "two" || c.Origin != feed.OriginExternal {
		t.Fatalf("a got %+v, want newest foreign value", c)
	}
	assertNoChange(t, subA)

	if err := b.Remove(ctx, "k", "wb"); err != nil {
		t.Fatalf("b.Remove: %v", err)
	}
	if err := a.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if c := waitChange(t, subA); !c.Removed {
		t.Fatalf("expected removal, got %+v", c)
	}
}

func TestSQLiteMigratesSchemaOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.sqlite")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE IF NOT EXISTS version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
		`CREATE TABLE kv (key TEXT PRIMARY KEY, value BLOB NOT NULL, updated_at TEXT NOT NULL);`,
		`CREATE TABLE revisions (id INTEGER PRIMARY KEY AUTOINCREMENT, key TEXT NOT NULL, value BLOB, removed INTEGER NOT NULL DEFAULT 0, origin TEXT, ts TEXT NOT NULL);`,
		`INSERT INTO kv(key, value, updated_at) VALUES('k', 'old', '2020-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	_ = db.Close()

	s := openTestSQLite(t, path, SQLiteOptions{})
	var schema int
	if err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&schema); err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if schema != schemaVersion {
		t.Fatalf("schema=%d want %d", schema, schemaVersion)
	}
	ok, err := columnExists(ctx, s.db, "revisions", "writer")
	if err != nil || !ok {
		t.Fatalf("writer column missing after migration: ok=%v err=%v", ok, err)
	}
	v, found, err := s.Get(ctx, "k")
	if err != nil || !found || string(v) != "old" {
		t.Fatalf("existing value lost: %q found=%v err=%v", v, found, err)
	}
	if err := s.Set(ctx, "k", []byte("new"), "w"); err != nil {
		t.Fatalf("Set after migration: %v", err)
	}
}
