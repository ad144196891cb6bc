/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the deck data model shared by every window: slides,
// the deck snapshot and the wire format persisted under the shared slot key.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// StorageKey is the slot key under which the deck snapshot is persisted.
const StorageKey = "obsPortraitDeckState:v1"

// Stage geometry in CSS pixels. The display renders slides at this size.
const (
	StageWidth  = 540
	StageHeight = 960
)

// Text slide colour defaults.
const (
	DefaultBackground = "#0f172a"
	DefaultTextColor  = "#f8fafc"
)

// Kind discriminates the slide variants on the wire.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Align is the horizontal text alignment of a text slide.
type Align string

const (
	AlignCenter Align = "center"
	AlignLeft   Align = "left"
)

// Fit is how an image fills the stage.
type Fit string

const (
	FitCover   Fit = "cover"
	FitContain Fit = "contain"
)

// NewID returns a fresh slide id. Tests may replace it.
var NewID = uuid.NewString

// NowMillis returns the current time in Unix milliseconds. Tests may replace it.
var NowMillis = func() int64 { return time.Now().UnixMilli() }

// SlideMeta carries the fields every slide has.
type SlideMeta struct {
	ID        string
	Label     string
	CreatedAt int64 // Unix ms
}

// Slide is either a *TextSlide or an *ImageSlide.
type Slide interface {
	Kind() Kind
	Meta() *SlideMeta
	Clone() Slide
	isSlide()
}

// TextSlide is a composed card with title, body and colours.
type TextSlide struct {
	SlideMeta
	Title      string
	Body       string
	Footnote   string
	Eyebrow    string
	Background string
	TextColor  string
	Align      Align
}

// ImageSlide shows one raster image carried as a data URL.
type ImageSlide struct {
	SlideMeta
	ImageData      string
	ImageFit       Fit
	ImageOptimized bool
}

func (s *TextSlide) Kind() Kind { return KindText }
func (s *TextSlide) Meta() *SlideMeta { return &s.SlideMeta }
func (s *TextSlide) isSlide() {}
func (s *ImageSlide) Kind() Kind { return KindImage }
func (s *ImageSlide) Meta() *SlideMeta { return &s.SlideMeta }
func (s *ImageSlide) isSlide() {}

// Clone returns an independent copy.
func (s *TextSlide) Clone() Slide {
	c := *s
	return &c
}

// Clone returns an independent copy.
func (s *ImageSlide) Clone() Slide {
	c := *s
	return &c
}

// NewTextSlide builds a text slide with defaults applied to empty colour and
// alignment fields.
func NewTextSlide(t TextSlide) *TextSlide {
	s := t
	if s.ID == "" {
		s.ID = NewID()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = NowMillis()
	}
	if s.Background == "" {
		s.Background = DefaultBackground
	}
	if s.TextColor == "" {
		s.TextColor = DefaultTextColor
	}
	if s.Align != AlignLeft {
		s.Align = AlignCenter
	}
	return &s
}

// NewImageSlide builds an image slide with a fresh id and the cover fit.
func NewImageSlide(label, data string, optimized bool) *ImageSlide {
	return &ImageSlide{
		SlideMeta:      SlideMeta{ID: NewID(), Label: label, CreatedAt: NowMillis()},
		ImageData:      data,
		ImageFit:       FitCover,
		ImageOptimized: optimized,
	}
}

// Title returns the title of a text slide, or "" for other kinds.
func Title(s Slide) string {
	if t, ok := s.(*TextSlide); ok {
		return t.Title
	}
	return ""
}

// DisplayLabel is the label shown in lists: label, then title, then "Slide".
func DisplayLabel(s Slide) string {
	if s == nil {
		return ""
	}
	if l := s.Meta().Label; l != "" {
		return l
	}
	if t := Title(s); t != "" {
		return t
	}
	return "Slide"
}
