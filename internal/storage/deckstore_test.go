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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/slot"
)

// failingSlot rejects every write with err.
type failingSlot struct {
	*slot.Memory
	err error
}

func (f failingSlot) Set(context.Context, string, []byte, string) error { return f.err }

func TestLoadEmptyAndMalformed(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory(0)
	st := NewDeckStore(mem, Options{Origin: "w1"})
	if d := st.Load(ctx); d.Len() != 0 || d.CurrentIndex != 0 {
		t.Fatalf("absent key must load empty deck, got %+v", d)
	}
	for _, raw := range []string{`{not json`, `[]`, `"x"`, `{"slides":{}}`, `{"slides":"no"}`} {
		if err := mem.Set(ctx, domain.StorageKey, []byte(raw), "other"); err != nil {
			t.Fatalf("seed %q: %v", raw, err)
		}
		if d := st.Load(ctx); d.Len() != 0 {
			t.Fatalf("payload %q: expected empty deck, got %d slides", raw, d.Len())
		}
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory(0)
	st := NewDeckStore(mem, Options{Origin: "w1"})
	deck := domain.SampleDeck()
	deck.CurrentIndex = 2
	if err := st.Save(ctx, deck); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := NewDeckStore(mem, Options{Origin: "w2"}).Load(ctx)
	if diff := cmp.Diff(deck, got); diff != "" {
		t.Fatalf("loaded deck differs (-want +got):\n%s", diff)
	}
}

func TestLoadClampsIndex(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory(0)
	raw := `{"slides":[{"id":"a","type":"text","title":"A"},{"id":"b","type":"text","title":"B"}],"currentIndex":9}`
	_ = mem.Set(ctx, domain.StorageKey, []byte(raw), "x")
	d := NewDeckStore(mem, Options{}).Load(ctx)
	if d.CurrentIndex != 1 {
		t.Fatalf("index=%d want 1", d.CurrentIndex)
	}
}

func TestReadOnlyStoreNeverWrites(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory(0)
	sub := mem.Subscribe(domain.StorageKey, "observer")
	defer sub.Close()
	st := NewDeckStore(mem, Options{Origin: "display", ReadOnly: true})
	if err := st.Save(ctx, domain.SampleDeck()); err != nil {
		t.Fatalf("read-only Save must succeed, got %v", err)
	}
	if _, ok, _ := mem.Get(ctx, domain.StorageKey); ok {
		t.Fatalf("read-only store wrote the slot")
	}
	select {
	case c := <-sub.C:
		t.Fatalf("unexpected notification %+v", c)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestQuotaAlertFiresOncePerStore(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory(64)
	st := NewDeckStore(mem, Options{Origin: "w1"})
	deck := domain.SampleDeck()

	err := st.Save(ctx, deck)
	se, ok := IsStorageError(err)
	if !ok {
		t.Fatalf("expected *StorageError, got %v", err)
	}
	if se.Kind != KindQuota || !se.Alert || se.Message != StorageErrorMessage {
		t.Fatalf("first failure: %+v", se)
	}
	var qe *slot.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("cause must stay reachable: %v", err)
	}

	se2, _ := IsStorageError(st.Save(ctx, deck))
	if se2 == nil || se2.Kind != KindQuota || se2.Alert {
		t.Fatalf("second failure must not alert: %+v", se2)
	}

	// A new store is a new session.
	se3, _ := IsStorageError(NewDeckStore(mem, Options{Origin: "w2"}).Save(ctx, deck))
	if se3 == nil || !se3.Alert {
		t.Fatalf("fresh store must alert again: %+v", se3)
	}
}

func TestWriteFailureIsNotQuota(t *testing.T) {
	st := NewDeckStore(failingSlot{Memory: slot.NewMemory(0), err: errors.New("disk on fire")}, Options{Origin: "w1"})
	se, ok := IsStorageError(st.Save(context.Background(), domain.SampleDeck()))
	if !ok || se.Kind != KindWrite || se.Alert {
		t.Fatalf("unexpected error %+v", se)
	}
}

func TestSubscribeSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory(0)
	a := NewDeckStore(mem, Options{Origin: "a"})
	b := NewDeckStore(mem, Options{Origin: "b"})
	subA := a.Subscribe()
	subB := b.Subscribe()
	defer subA.Close()
	defer subB.Close()

	if err := a.Save(ctx, domain.SampleDeck()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	select {
	case c := <-subB.C:
		if c.Origin != "a" || c.Removed {
			t.Fatalf("b got %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatalf("b was not notified")
	}
	select {
	case c := <-subA.C:
		t.Fatalf("writer saw its own change %+v", c)
	case <-time.After(30 * time.Millisecond):
	}

	if err := b.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	select {
	case c := <-subA.C:
		if !c.Removed {
			t.Fatalf("expected removal, got %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatalf("a was not notified of reset")
	}
	if d := a.Load(ctx); d.Len() != 0 {
		t.Fatalf("reset must leave an empty slot")
	}
}

func TestExportFileName(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 34, 56, 789_000_000, time.UTC)
	if got := ExportFileName(now); got != "obs-portrait-deck-2024-05-01T12-34-56-789Z.json" {
		t.Fatalf("filename=%q", got)
	}
}

func TestCrashSnapshotIsImportable(t *testing.T) {
	dir := t.TempDir()
	deck := domain.SampleDeck()
	cpath, err := AutosaveCrashSnapshot(deck, filepath.Join(dir, "crash"))
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(cpath), CrashPrefix) {
		t.Fatalf("unexpected name %s", cpath)
	}
	b, err := os.ReadFile(cpath)
	if err != nil {
		t.Fatalf("read crash snapshot: %v", err)
	}
	got, _, err := domain.ParseImport(b)
	if err != nil {
		t.Fatalf("crash snapshot must import: %v", err)
	}
	if diff := cmp.Diff(deck, got); diff != "" {
		t.Fatalf("crash snapshot round trip (-want +got):\n%s", diff)
	}
}
