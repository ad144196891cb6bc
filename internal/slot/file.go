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
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"portraitdeck/internal/feed"
	applog "portraitdeck/internal/log"
)

const (
	fileExt          = ".slot"
	BackupsDirName   = "backups"
	DefaultKeepFiles = 5
)

// FileOptions configures a directory-backed slot.
type FileOptions struct {
	Dir         string
	Quota       int  // bytes over all keys; 0 disables
	KeepBackups int  // per key; 0 means DefaultKeepFiles, negative disables backups
	Watch       bool // publish modifications made by other processes
}

// File stores every key in its own file under Dir. Writes are atomic and the
// previous value is kept as a timestamped backup.
type File struct {
	dir   string
	quota int
	keep  int
	hub   *feed.Hub
	log   *slog.Logger

	mu     sync.Mutex
	known  map[string][32]byte // file name -> hash of the content last seen or written
	closed bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

var missingHash = sha256.Sum256(nil)

// OpenFile creates Dir if needed and, with Watch set, starts an fsnotify
// watcher on it.
func OpenFile(opts FileOptions) (*File, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("slot directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	keep := opts.KeepBackups
	if keep == 0 {
		keep = DefaultKeepFiles
	}
	f := &File{
		dir:   opts.Dir,
		quota: opts.Quota,
		keep:  keep,
		hub:   feed.NewHub(),
		log:   applog.WithComponent("slot").With(slog.String("dir", opts.Dir)),
		known: make(map[string][32]byte),
		done:  make(chan struct{}),
	}
	if err := f.seedKnown(); err != nil {
		return nil, err
	}
	if opts.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		if err := w.Add(opts.Dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch slot dir: %w", err)
		}
		f.watcher = w
		f.wg.Add(1)
		go f.watch()
	}
	return f, nil
}

func (f *File) seedKnown() error {
	ents, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("read slot dir: %w", err)
	}
	for _, e := range ents {
		if e.IsDir() || !isSlotFile(e.Name()) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(f.dir, e.Name()))
		if err != nil {
			continue
		}
		f.known[e.Name()] = sha256.Sum256(b)
	}
	return nil
}

func fileName(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key)) + fileExt
}

func keyFromFileName(name string) (string, bool) {
	if !isSlotFile(name) {
		return "", false
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileExt))
	if err != nil {
		return "", false
	}
	return string(b), true
}

func isSlotFile(name string) bool {
	return strings.HasSuffix(name, fileExt) && !strings.HasPrefix(name, ".")
}

// Path returns the file holding key.
func (f *File) Path(key string) string { return filepath.Join(f.dir, fileName(key)) }

func (f *File) backupsDir() string { return filepath.Join(f.dir, BackupsDirName) }

func (f *File) Subscribe(key, subscriberID string) *feed.Subscription {
	return f.hub.Subscribe(key, subscriberID)
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validKey(key); err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(f.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read slot %q: %w", key, err)
	}
	return b, true, nil
}

func (f *File) Set(_ context.Context, key string, value []byte, origin string) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	path := f.Path(key)
	if cur, err := os.ReadFile(path); err == nil && bytes.Equal(cur, value) {
		return nil
	}
	if f.quota > 0 {
		need, err := f.usageExcept(fileName(key))
		if err != nil {
			return err
		}
		need += len(key) + len(value)
		if need > f.quota {
			return newQuotaError(f.quota, need)
		}
	}
	if f.keep > 0 {
		if err := backupFile(path, f.backupsDir(), f.keep, time.Now()); err != nil {
			f.log.Warn("backup before write failed", slog.Any("err", err))
		}
	}
	if err := WriteFileAtomic(path, value); err != nil {
		return fmt.Errorf("write slot %q: %w", key, err)
	}
	f.known[fileName(key)] = sha256.Sum256(value)
	f.hub.Publish(feed.Change{Key: key, Value: bytes.Clone(value), Origin: origin})
	return nil
}

// usageExcept sums key and value sizes of every stored key except skip.
func (f *File) usageExcept(skip string) (int, error) {
	ents, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, fmt.Errorf("read slot dir: %w", err)
	}
	total := 0
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || name == skip {
			continue
		}
		key, ok := keyFromFileName(name)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += len(key) + int(info.Size())
	}
	return total, nil
}

func (f *File) Remove(_ context.Context, key, origin string) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	path := f.Path(key)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if f.keep > 0 {
		if err := backupFile(path, f.backupsDir(), f.keep, time.Now()); err != nil {
			f.log.Warn("backup before remove failed", slog.Any("err", err))
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove slot %q: %w", key, err)
	}
	f.known[fileName(key)] = missingHash
	f.hub.Publish(feed.Change{Key: key, Removed: true, Origin: origin})
	return nil
}

// Backups lists the stored backups of key, oldest first.
func (f *File) Backups(key string) ([]string, error) {
	return listBackups(f.backupsDir(), fileName(key))
}

// Restore puts the newest backup of key back in place on behalf of origin
// and returns the restored value.
func (f *File) Restore(ctx context.Context, key, origin string) ([]byte, error) {
	all, err := f.Backups(key)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.New("no backups found")
	}
	latest := all[len(all)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	if err := f.Set(ctx, key, b, origin); err != nil {
		return nil, err
	}
	return b, nil
}

func (f *File) watch() {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(ev.Name)
			key, ok := keyFromFileName(name)
			if !ok || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			f.onExternal(key, name)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("watcher error", slog.Any("err", err))
		}
	}
}

// onExternal publishes the current content of name unless it is what this
// process last wrote or saw.
func (f *File) onExternal(key, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	b, err := os.ReadFile(filepath.Join(f.dir, name))
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		f.log.Warn("read changed slot file failed", slog.String("file", name), slog.Any("err", err))
		return
	}
	sum := missingHash
	if !missing {
		sum = sha256.Sum256(b)
	}
	prev, tracked := f.known[name]
	if tracked && prev == sum {
		return
	}
	if !tracked && missing {
		return
	}
	f.known[name] = sum
	c := feed.Change{Key: key, Origin: feed.OriginExternal}
	if missing {
		c.Removed = true
	} else {
		c.Value = b
	}
	f.log.Debug("external slot change", slog.String("key", key), slog.Bool("removed", missing))
	f.hub.Publish(c)
}

// Close stops the watcher and ends all subscriptions.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.done)
	f.mu.Unlock()
	var err error
	if f.watcher != nil {
		err = f.watcher.Close()
	}
	f.wg.Wait()
	f.hub.Close()
	return err
}
