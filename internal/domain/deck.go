/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// Deck is the persisted unit: the ordered slides and the live index.
type Deck struct {
	Slides       []Slide
	CurrentIndex int
}

// ClampIndex bounds i to [0, n-1], or 0 when n is zero.
func ClampIndex(i, n int) int {
	if n <= 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Clamp normalises CurrentIndex against the slide count.
func (d *Deck) Clamp() {
	d.CurrentIndex = ClampIndex(d.CurrentIndex, len(d.Slides))
}

// Len returns the number of slides.
func (d Deck) Len() int { return len(d.Slides) }

// IndexOf returns the position of the slide with id, or -1.
func (d Deck) IndexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, s := range d.Slides {
		if s.Meta().ID == id {
			return i
		}
	}
	return -1
}

// Find returns the slide with id, or nil.
func (d Deck) Find(id string) Slide {
	if i := d.IndexOf(id); i >= 0 {
		return d.Slides[i]
	}
	return nil
}

// At returns the slide at i, or nil when i is out of range.
func (d Deck) At(i int) Slide {
	if i < 0 || i >= len(d.Slides) {
		return nil
	}
	return d.Slides[i]
}

// Live returns the slide at CurrentIndex, or nil for an empty deck.
func (d Deck) Live() Slide { return d.At(d.CurrentIndex) }

// Clone deep-copies the deck so the copy can be mutated independently.
func (d Deck) Clone() Deck {
	out := Deck{CurrentIndex: d.CurrentIndex}
	if d.Slides != nil {
		out.Slides = make([]Slide, len(d.Slides))
		for i, s := range d.Slides {
			out.Slides[i] = s.Clone()
		}
	}
	return out
}

// EnsureUniqueIDs assigns fresh ids to slides whose id is empty or repeats an
// earlier one. It reports whether anything changed.
func (d *Deck) EnsureUniqueIDs() bool {
	seen := make(map[string]struct{}, len(d.Slides))
	changed := false
	for _, s := range d.Slides {
		m := s.Meta()
		if _, dup := seen[m.ID]; m.ID == "" || dup {
			m.ID = NewID()
			changed = true
		}
		seen[m.ID] = struct{}{}
	}
	return changed
}
