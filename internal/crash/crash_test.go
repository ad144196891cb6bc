/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/storage"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Portrait Deck Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportUsesTargetDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	path, err := writeReport(&Target{Dir: dir}, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected crash report under %s, got %s", dir, path)
	}
}

func silenceStderr(t *testing.T) {
	t.Helper()
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	})
}

func findPrefix(t *testing.T, dir, prefix string) string {
	t.Helper()
	files, _ := os.ReadDir(dir)
	for _, f := range files {
		if strings.HasPrefix(f.Name(), prefix) {
			return filepath.Join(dir, f.Name())
		}
	}
	return ""
}

// Recover handles a panic, writes a report, saves the deck and does not
// terminate the test process thanks to the injected exitFn.
func TestRecoverWritesReportAndDeck(t *testing.T) {
	silenceStderr(t)
	called := 0
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	deck := domain.Deck{Slides: []domain.Slide{domain.NewTextSlide(domain.TextSlide{
		SlideMeta: domain.SlideMeta{ID: "s1", Label: "Opening"},
		Title:     "Saved on crash",
	})}}

	func() {
		defer Recover(&Target{Dir: dir, Deck: func() domain.Deck { return deck }})
		panic("boom")
	}()

	report := findPrefix(t, dir, "crash-")
	if report == "" {
		t.Fatalf("expected crash report in %s", dir)
	}
	b, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Contains(b, []byte("Panic: boom")) {
		t.Fatalf("report does not contain panic: %s", string(b))
	}

	snap := findPrefix(t, dir, storage.CrashPrefix)
	if snap == "" {
		t.Fatalf("expected deck snapshot in %s", dir)
	}
	data, err := os.ReadFile(snap)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := domain.ParseImport(data)
	if err != nil || got.Len() != 1 {
		t.Fatalf("snapshot is not an importable deck: %v", err)
	}

	if called != 2 {
		t.Fatalf("expected exit code 2, got %d", called)
	}
}

func TestRecoverSkipsEmptyDeck(t *testing.T) {
	silenceStderr(t)
	oldExit := exitFn
	exitFn = func(int) {}
	defer func() { exitFn = oldExit }()

	dir := t.TempDir()
	func() {
		defer Recover(&Target{Dir: dir, Deck: func() domain.Deck { return domain.Deck{} }})
		panic("empty")
	}()
	if snap := findPrefix(t, dir, storage.CrashPrefix); snap != "" {
		t.Fatalf("empty deck was saved: %s", snap)
	}
}
