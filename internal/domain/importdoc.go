/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
)

// ErrNotDeckExport is returned when an import document cannot be used at all.
var ErrNotDeckExport = errors.New("not a deck export")

// ImportFailedMessage is the notice shown when ErrNotDeckExport is returned.
const ImportFailedMessage = "Unable to import that file. Please choose a deck export."

// ImportReport describes what ParseImport did with the incoming slides.
type ImportReport struct {
	Received int // entries in the slides array
	Accepted int
	Dropped  int // non-objects plus slides failing acceptance
}

// ParseImport validates an export document and sanitises it into a deck.
// Every slide is sanitised on its own; slides without content are dropped
// without failing the import. The returned deck has its index clamped.
func ParseImport(data []byte) (Deck, ImportReport, error) {
	if err := ValidateDocument(data); err != nil {
		return Deck{}, ImportReport{}, fmt.Errorf("%w (%v)", ErrNotDeckExport, err)
	}
	snap, err := ParseSnapshot(data)
	if err != nil {
		return Deck{}, ImportReport{}, fmt.Errorf("%w (%v)", ErrNotDeckExport, err)
	}
	rep := ImportReport{Received: len(snap.Deck.Slides) + snap.Dropped}
	rawIndex := snap.Deck.CurrentIndex
	out := Deck{Slides: make([]Slide, 0, len(snap.Deck.Slides))}
	for _, s := range snap.Deck.Slides {
		if !acceptable(s) {
			continue
		}
		m := s.Meta()
		if m.Label == "" {
			m.Label = DisplayLabel(s)
		}
		out.Slides = append(out.Slides, s)
	}
	rep.Accepted = len(out.Slides)
	rep.Dropped = rep.Received - rep.Accepted
	if snap.IndexPresent {
		out.CurrentIndex = rawIndex
	}
	out.Clamp()
	return out, rep, nil
}

func acceptable(s Slide) bool {
	switch v := s.(type) {
	case *ImageSlide:
		return v.ImageData != ""
	case *TextSlide:
		return v.Title != "" || v.Body != ""
	}
	return false
}
