/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures and word-wraps slide text for the raster and
// PDF exporters.
package textlayout

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name
	SizePt float32
	Weight int // 100..900
	Italic bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// Span is a run of text with the same font. Leading is extra pixels added to
// each line height.
type Span struct {
	Text    string
	Font    FontSpec
	Leading float32
}

// Line is a single laid out line.
type Line struct {
	Text  string
	Width float32
}

// TextBox is the result of laying out text into a box width.
type TextBox struct {
	Lines      []Line
	Width      float32
	Height     float32
	LineHeight float32
	Metrics    Metrics
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// Layouter performs line-breaking and measurement.
type Layouter interface {
	Layout(spans []Span, maxWidth float32) (TextBox, error)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// WordWrapLayouter breaks on spaces and newlines; it does not shape or
// hyphenate. A word wider than the box gets a line of its own.
type WordWrapLayouter struct{ Provider Provider }

func NewWordWrap(provider Provider) *WordWrapLayouter { return &WordWrapLayouter{Provider: provider} }

// Layout wraps the spans into lines no wider than maxWidth. All spans are
// measured with the first span's font.
func (l *WordWrapLayouter) Layout(spans []Span, maxWidth float32) (TextBox, error) {
	if l.Provider == nil {
		l.Provider = BasicProvider{}
	}
	var spec FontSpec
	var leading float32
	if len(spans) > 0 {
		spec = spans[0].Font
	}
	for _, sp := range spans {
		if sp.Leading > leading {
			leading = sp.Leading
		}
	}
	face, met := l.Provider.Resolve(spec)
	drawer := &font.Drawer{Face: face}
	box := TextBox{Metrics: met, LineHeight: met.Ascent + met.Descent + met.LineGap + leading}
	var cur strings.Builder
	var curW float32
	flush := func() {
		text := strings.TrimRight(cur.String(), " ")
		w := advance(drawer, text)
		box.Lines = append(box.Lines, Line{Text: text, Width: w})
		if w > box.Width {
			box.Width = w
		}
		box.Height += box.LineHeight
		cur.Reset()
		curW = 0
	}
	space := advance(drawer, " ")
	var text strings.Builder
	for _, sp := range spans {
		text.WriteString(sp.Text)
	}
	for i, para := range strings.Split(strings.ReplaceAll(text.String(), "\r\n", "\n"), "\n") {
		if i > 0 {
			flush()
		}
		for _, word := range strings.Fields(para) {
			w := advance(drawer, word)
			if curW > 0 && maxWidth > 0 && curW+space+w > maxWidth {
				flush()
			}
			if curW > 0 {
				cur.WriteByte(' ')
				curW += space
			}
			cur.WriteString(word)
			curW += w
		}
	}
	if cur.Len() > 0 || len(box.Lines) == 0 {
		flush()
	}
	return box, nil
}

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s).Ceil())
}

// Measure provides a quick way to measure text width/height without line-breaks.
func Measure(provider Provider, spans []Span) (w, h float32) {
	if provider == nil {
		provider = BasicProvider{}
	}
	var width, lineH float32
	for _, sp := range spans {
		face, met := provider.Resolve(sp.Font)
		d := &font.Drawer{Face: face}
		width += advance(d, sp.Text)
		if lh := met.Ascent + met.Descent + sp.Leading; lh > lineH {
			lineH = lh
		}
	}
	return width, lineH
}
