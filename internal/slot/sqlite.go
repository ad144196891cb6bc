/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package slot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"portraitdeck/internal/feed"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// schemaVersion tracks the slot database schema.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2

	DefaultKeepRevisions = 20
	DefaultPollInterval  = 500 * time.Millisecond
)

// language=SQL
// dialect=SQLite
const selectValueSQL = `SELECT value FROM kv WHERE key = ?`

// language=SQL
// dialect=SQLite
const upsertValueSQL = `INSERT INTO kv(key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const usageExceptSQL = `SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv WHERE key <> ?`

// language=SQL
// dialect=SQLite
const insertRevisionSQL = `INSERT INTO revisions(key, value, removed, origin, writer, ts) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const pruneRevisionsSQL = `DELETE FROM revisions WHERE key = ? AND id NOT IN (
	SELECT id FROM revisions WHERE key = ? ORDER BY id DESC LIMIT ?
)`

// language=SQL
// dialect=SQLite
const foreignRevisionsSQL = `SELECT id, key, value, removed FROM revisions WHERE id > ? AND writer <> ? ORDER BY id`

// language=SQL
// dialect=SQLite
const listRevisionsSQL = `SELECT ts, value, removed, origin FROM revisions WHERE key = ? ORDER BY id DESC LIMIT ?`

// SQLiteOptions configures a database-backed slot.
type SQLiteOptions struct {
	Path          string
	Quota         int           // bytes over all keys; 0 disables
	KeepRevisions int           // per key; 0 means DefaultKeepRevisions
	PollInterval  time.Duration // 0 means DefaultPollInterval; negative disables polling
}

// SQLite keeps values in a kv table and appends every write to a pruned
// revisions table. Other processes sharing the file are noticed by polling
// for revisions written by a different writer id.
type SQLite struct {
	db     *sql.DB
	path   string
	quota  int
	keep   int
	writer string
	hub    *feed.Hub
	log    *slog.Logger

	mu      sync.Mutex
	lastRev int64
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Revision is one stored write of a key.
type Revision struct {
	TS      time.Time
	Value   []byte
	Removed bool
	Origin  string
}

// OpenSQLite opens or creates the database at opts.Path, enables WAL mode,
// ensures the meta/version tables and runs migrations.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLite, error) {
	l := applog.WithOperation(applog.WithComponent("slot"), "sqlite_open").With(
		slog.String("path", opts.Path),
	)
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// Use a URI with busy timeout. Convert to forward slashes for SQLite URI.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(opts.Path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ictx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ictx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ictx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureSlotSchema(ictx, db); err != nil {
		_ = db.Close()
		l.Error("ensure slot schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ictx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	keep := opts.KeepRevisions
	if keep <= 0 {
		keep = DefaultKeepRevisions
	}
	s := &SQLite{
		db:     db,
		path:   opts.Path,
		quota:  opts.Quota,
		keep:   keep,
		writer: uuid.NewString(),
		hub:    feed.NewHub(),
		log:    applog.WithComponent("slot").With(slog.String("path", opts.Path)),
		done:   make(chan struct{}),
	}
	if err := db.QueryRowContext(ictx, `SELECT COALESCE(MAX(id), 0) FROM revisions`).Scan(&s.lastRev); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read revision head: %w", err)
	}
	poll := opts.PollInterval
	if poll == 0 {
		poll = DefaultPollInterval
	}
	if poll > 0 {
		s.wg.Add(1)
		go s.pollLoop(poll)
	}
	l.Info("slot database ready")
	return s, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Keep the stored schema so migrations can run from it.
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureSlotSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS revisions (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			key     TEXT NOT NULL,
			value   BLOB,
			removed INTEGER NOT NULL DEFAULT 0,
			origin  TEXT,
			writer  TEXT NOT NULL,
			ts      TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_revisions_key ON revisions(key, id);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create slot table: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Schema 1 had a single writer per database; revisions now record
			// which process wrote them so pollers can skip their own.
			hasWriter, err := columnExists(ctx, db, "revisions", "writer")
			if err != nil {
				return fmt.Errorf("migration %d inspect: %w", next, err)
			}
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			var stmts []string
			if !hasWriter {
				stmts = append(stmts, `ALTER TABLE revisions ADD COLUMN writer TEXT NOT NULL DEFAULT '';`)
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
		default:
			// Unknown future step.
		}
		cur = next
	}
	return nil
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return false, err
	}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return false, err
		}
		for i, c := range cols {
			if c != "name" {
				continue
			}
			switch v := vals[i].(type) {
			case string:
				if v == column {
					return true, nil
				}
			case []byte:
				if string(v) == column {
					return true, nil
				}
			}
		}
	}
	return false, rows.Err()
}

func (s *SQLite) Subscribe(key, subscriberID string) *feed.Subscription {
	return s.hub.Subscribe(key, subscriberID)
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	var v []byte
	err := s.db.QueryRowContext(ctx, selectValueSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, origin string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var cur []byte
	switch err := tx.QueryRowContext(ctx, selectValueSQL, key).Scan(&cur); {
	case err == nil && bytes.Equal(cur, value):
		return nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("read slot %q: %w", key, err)
	}
	if s.quota > 0 {
		var used int
		if err := tx.QueryRowContext(ctx, usageExceptSQL, key).Scan(&used); err != nil {
			return fmt.Errorf("measure slot usage: %w", err)
		}
		if need := used + len(key) + len(value); need > s.quota {
			return newQuotaError(s.quota, need)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, upsertValueSQL, key, value, now); err != nil {
		return fmt.Errorf("write slot %q: %w", key, err)
	}
	rev, err := s.appendRevision(ctx, tx, key, value, false, origin, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slot %q: %w", key, err)
	}
	s.log.Debug("slot written", slog.String("key", key), slog.Int64("rev", rev), slog.Int("bytes", len(value)))
	s.hub.Publish(feed.Change{Key: key, Value: bytes.Clone(value), Origin: origin})
	return nil
}

func (s *SQLite) Remove(ctx context.Context, key, origin string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("remove slot %q: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	rev, err := s.appendRevision(ctx, tx, key, nil, true, origin, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove %q: %w", key, err)
	}
	s.log.Debug("slot removed", slog.String("key", key), slog.Int64("rev", rev))
	s.hub.Publish(feed.Change{Key: key, Removed: true, Origin: origin})
	return nil
}

func (s *SQLite) appendRevision(ctx context.Context, tx *sql.Tx, key string, value []byte, removed bool, origin, ts string) (int64, error) {
	res, err := tx.ExecContext(ctx, insertRevisionSQL, key, value, removed, origin, s.writer, ts)
	if err != nil {
		return 0, fmt.Errorf("append revision: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("revision id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, pruneRevisionsSQL, key, key, s.keep); err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	return id, nil
}

// advance moves the poll cursor. Only foreign revisions move it, so a local
// write can never hide a foreign write to another key. Caller holds s.mu.
func (s *SQLite) advance(rev int64) {
	if rev > s.lastRev {
		s.lastRev = rev
	}
}

// Revisions returns up to limit most recent writes of key, newest first.
func (s *SQLite) Revisions(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = s.keep
	}
	rows, err := s.db.QueryContext(ctx, listRevisionsSQL, key, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var (
			tsStr   string
			value   []byte
			removed bool
			origin  sql.NullString
		)
		if err := rows.Scan(&tsStr, &value, &removed, &origin); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, Revision{TS: ts, Value: value, Removed: removed, Origin: origin.String})
	}
	return out, rows.Err()
}

func (s *SQLite) pollLoop(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.Poll(context.Background()); err != nil {
				s.log.Warn("poll revisions failed", slog.Any("err", err))
			}
		}
	}
}

// Poll publishes revisions written by other processes since the last poll.
// Only the newest revision per key is published.
func (s *SQLite) Poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, foreignRevisionsSQL, s.lastRev, s.writer)
	if err != nil {
		return fmt.Errorf("query revisions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	latest := make(map[string]feed.Change)
	var order []string
	for rows.Next() {
		var (
			id      int64
			key     string
			value   []byte
			removed bool
		)
		if err := rows.Scan(&id, &key, &value, &removed); err != nil {
			return err
		}
		s.advance(id)
		if _, ok := latest[key]; !ok {
			order = append(order, key)
		}
		latest[key] = feed.Change{Key: key, Value: value, Removed: removed, Origin: feed.OriginExternal}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, k := range order {
		s.hub.Publish(latest[k])
	}
	return nil
}

// Close stops polling, ends subscriptions and closes the database.
func (s *SQLite) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.wg.Wait()
	s.hub.Close()
	return s.db.Close()
}
