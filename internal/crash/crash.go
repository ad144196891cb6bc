/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file plus a last-chance export of
// the deck.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"portraitdeck/internal/domain"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/storage"
	"portraitdeck/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target says where reports go and how to fetch the deck worth saving.
type Target struct {
	Dir  string             // report and snapshot directory; empty means os.TempDir
	Deck func() domain.Deck // optional
}

func (t *Target) dir() string {
	if t == nil || t.Dir == "" {
		return os.TempDir()
	}
	return t.Dir
}

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file, and attempts a crash-safe export
// of the deck (if the target provides one).
//
// Usage: defer crash.Recover(target)
func Recover(t *Target) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, _ := writeReport(t, r, stack)
		if path, ok := autosave(t, l); ok {
			l.Info("autosave crash snapshot written", slog.String("path", path))
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		// Exit with a non-zero code to indicate failure in CLI context.
		exitFn(2)
	}
}

// autosave skips empty decks; a second panic while reading the deck is
// swallowed so the report still gets out.
func autosave(t *Target, l *slog.Logger) (path string, ok bool) {
	if t == nil || t.Deck == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			l.Error("reading deck for crash snapshot panicked", slog.Any("panic", r))
			ok = false
		}
	}()
	d := t.Deck()
	if d.Len() == 0 {
		return "", false
	}
	path, err := storage.AutosaveCrashSnapshot(d, t.dir())
	if err != nil {
		l.Error("autosave crash snapshot failed", slog.Any("err", err))
		return "", false
	}
	return path, true
}

func writeReport(t *Target, panicVal any, stack []byte) (string, error) {
	dir := t.dir()
	_ = os.MkdirAll(dir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	fname := fmt.Sprintf("crash-%s.log", stamp)
	path := filepath.Join(dir, fname)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Portrait Deck Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
