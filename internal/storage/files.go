/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/slot"
)

const (
	// ExportPrefix starts every export filename.
	ExportPrefix = "obs-portrait-deck-"
	// CrashPrefix starts every crash autosave filename.
	CrashPrefix = "deck-crash-"
)

// ExportFileName returns the download name for an export taken at now, e.g.
// obs-portrait-deck-2024-05-01T12-34-56-789Z.json.
func ExportFileName(now time.Time) string {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return ExportPrefix + ts + ".json"
}

// AutosaveCrashSnapshot writes the deck next to the crash report so a panic
// never loses the operator's work.
func AutosaveCrashSnapshot(deck domain.Deck, dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := domain.EncodeExport(deck)
	if err != nil {
		return "", fmt.Errorf("encode crash snapshot: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, CrashPrefix+stamp+".json")
	if err := slot.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
