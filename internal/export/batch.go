/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"path/filepath"
	"time"

	"portraitdeck/internal/domain"
)

// BatchOptions controls Batch.
//
// Files are named like the browser download (obs-portrait-deck-<timestamp>)
// with the format's extension, all sharing one timestamp.
type BatchOptions struct {
	Formats []Format // empty means JSON only
	OutDir  string
	Now     time.Time // zero means time.Now
}

// Batch writes d once per format into OutDir and returns the paths written.
func Batch(d domain.Deck, opt BatchOptions) ([]string, error) {
	if d.Len() == 0 {
		return nil, ErrEmptyDeck
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON}
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}
	dir := opt.OutDir
	if dir == "" {
		dir = "."
	}
	var paths []string
	for _, f := range formats {
		out := filepath.Join(dir, FileName(f, now))
		if err := WriteFile(out, f, d); err != nil {
			return paths, fmt.Errorf("%s: %w", f, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
