/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned when a payload is not a deck snapshot: not a JSON
// object, or its slides field is not an array.
var ErrMalformed = errors.New("malformed deck snapshot")

type textRecord struct {
	ID         string `json:"id"`
	Type       Kind   `json:"type"`
	Label      string `json:"label"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Footnote   string `json:"footnote"`
	Eyebrow    string `json:"eyebrow"`
	Background string `json:"background"`
	TextColor  string `json:"textColor"`
	Align      Align  `json:"align"`
	CreatedAt  int64  `json:"createdAt"`
}

type imageRecord struct {
	ID             string `json:"id"`
	Type           Kind   `json:"type"`
	Label          string `json:"label"`
	ImageData      string `json:"imageData"`
	ImageFit       Fit    `json:"imageFit"`
	ImageOptimized bool   `json:"imageOptimized"`
	CreatedAt      int64  `json:"createdAt"`
}

type deckRecord struct {
	Slides       []any `json:"slides"`
	CurrentIndex int   `json:"currentIndex"`
}

func slideRecord(s Slide) any {
	switch v := s.(type) {
	case *TextSlide:
		return textRecord{
			ID: v.ID, Type: KindText, Label: v.Label,
			Title: v.Title, Body: v.Body, Footnote: v.Footnote, Eyebrow: v.Eyebrow,
			Background: v.Background, TextColor: v.TextColor, Align: v.Align,
			CreatedAt: v.CreatedAt,
		}
	case *ImageSlide:
		return imageRecord{
			ID: v.ID, Type: KindImage, Label: v.Label,
			ImageData: v.ImageData, ImageFit: v.ImageFit, ImageOptimized: v.ImageOptimized,
			CreatedAt: v.CreatedAt,
		}
	}
	return nil
}

// MarshalJSON writes the flat wire shape {slides, currentIndex}.
func (d Deck) MarshalJSON() ([]byte, error) {
	rec := deckRecord{Slides: make([]any, 0, len(d.Slides)), CurrentIndex: d.CurrentIndex}
	for _, s := range d.Slides {
		if r := slideRecord(s); r != nil {
			rec.Slides = append(rec.Slides, r)
		}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes a snapshot leniently; see ParseSnapshot.
func (d *Deck) UnmarshalJSON(b []byte) error {
	snap, err := ParseSnapshot(b)
	if err != nil {
		return err
	}
	*d = snap.Deck
	return nil
}

// EncodeSnapshot serialises the deck compactly for the shared slot.
func EncodeSnapshot(d Deck) ([]byte, error) { return json.Marshal(d) }

// EncodeExport serialises the deck as an indented export document.
func EncodeExport(d Deck) ([]byte, error) { return json.MarshalIndent(d, "", "  ") }

// Snapshot is a decoded payload. IndexPresent reports whether the payload
// carried a numeric currentIndex; when false Deck.CurrentIndex is 0 and callers
// may substitute their own.
type Snapshot struct {
	Deck         Deck
	IndexPresent bool
	Dropped      int // elements of slides that were not objects
}

// ParseSnapshot decodes a persisted or broadcast deck. Non-object slide entries
// are dropped, missing fields take their defaults, missing or duplicate ids are
// regenerated and the index is clamped.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return Snapshot{}, ErrMalformed
	}
	var elems []json.RawMessage
	raw, ok := top["slides"]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: slides missing", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		return Snapshot{}, fmt.Errorf("%w: slides is not an array", ErrMalformed)
	}
	var snap Snapshot
	snap.Deck.Slides = make([]Slide, 0, len(elems))
	for _, e := range elems {
		fields, ok := decodeObject(e)
		if !ok {
			snap.Dropped++
			continue
		}
		snap.Deck.Slides = append(snap.Deck.Slides, slideFromFields(fields))
	}
	if idx, ok := numericIndex(top["currentIndex"], len(snap.Deck.Slides)); ok {
		snap.Deck.CurrentIndex = idx
		snap.IndexPresent = true
	}
	snap.Deck.EnsureUniqueIDs()
	snap.Deck.Clamp()
	return snap, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// numericIndex accepts only JSON numbers. Fractions are floored and the result
// is clamped against n.
func numericIndex(raw json.RawMessage, n int) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	f = math.Floor(f)
	if f < 0 {
		return 0, true
	}
	if f > float64(n) {
		f = float64(n)
	}
	return ClampIndex(int(f), n), true
}

func str(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// truthy follows loose boolean coercion so hand-edited exports still decode.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return false
}

func slideFromFields(m map[string]any) Slide {
	created := int64(0)
	if f, ok := m["createdAt"].(float64); ok && f > 0 {
		created = int64(f)
	}
	meta := SlideMeta{ID: str(m, "id"), Label: str(m, "label"), CreatedAt: created}
	if meta.CreatedAt == 0 {
		meta.CreatedAt = NowMillis()
	}
	if str(m, "type") == string(KindImage) {
		fit := FitCover
		if str(m, "imageFit") == string(FitContain) {
			fit = FitContain
		}
		return &ImageSlide{SlideMeta: meta, ImageData: str(m, "imageData"), ImageFit: fit, ImageOptimized: truthy(m["imageOptimized"])}
	}
	t := &TextSlide{
		SlideMeta:  meta,
		Title:      str(m, "title"),
		Body:       str(m, "body"),
		Footnote:   str(m, "footnote"),
		Eyebrow:    str(m, "eyebrow"),
		Background: str(m, "background"),
		TextColor:  str(m, "textColor"),
		Align:      AlignCenter,
	}
	if str(m, "align") == string(AlignLeft) {
		t.Align = AlignLeft
	}
	if t.Background == "" {
		t.Background = DefaultBackground
	}
	if t.TextColor == "" {
		t.TextColor = DefaultTextColor
	}
	return t
}
