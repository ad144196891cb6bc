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
	"testing"
)

func TestDisplayLabelFallbacks(t *testing.T) {
	if got := DisplayLabel(&TextSlide{SlideMeta: SlideMeta{Label: "L"}, Title: "T"}); got != "L" {
		t.Fatalf("got %q want L", got)
	}
	if got := DisplayLabel(&TextSlide{Title: "T"}); got != "T" {
		t.Fatalf("got %q want T", got)
	}
	if got := DisplayLabel(&ImageSlide{}); got != "Slide" {
		t.Fatalf("got %q want Slide", got)
	}
}

func TestNewTextSlideDefaults(t *testing.T) {
	sequentialIDs(t)
	s := NewTextSlide(TextSlide{Title: "x", Align: "justify"})
	if s.ID != "gen-1" || s.CreatedAt == 0 {
		t.Fatalf("id/createdAt not assigned: %+v", s)
	}
	if s.Background != DefaultBackground || s.TextColor != DefaultTextColor || s.Align != AlignCenter {
		t.Fatalf("defaults not applied: %+v", s)
	}
}

func TestMatchesSearch(t *testing.T) {
	txt := &TextSlide{SlideMeta: SlideMeta{Label: "Intro"}, Title: "Big News", Body: "second LINE", Footnote: "fn", Eyebrow: "Tonight"}
	img := &ImageSlide{SlideMeta: SlideMeta{Label: "Poster Art"}}
	cases := []struct {
		s     Slide
		q     string
		match bool
	}{
		{txt, "", true},
		{txt, "  ", true},
		{txt, "news", true},
		{txt, "line", true},
		{txt, "TONIGHT", true},
		{txt, "FN", true},
		{txt, "absent", false},
		{img, "poster", true},
		{img, "news", false},
	}
	for _, c := range cases {
		if got := MatchesSearch(c.s, c.q); got != c.match {
			t.Fatalf("MatchesSearch(%q)=%v want %v", c.q, got, c.match)
		}
	}
	d := Deck{Slides: []Slide{txt, img}}
	if v := d.Visible("poster"); len(v) != 1 || v[0] != 1 {
		t.Fatalf("Visible(poster)=%v", v)
	}
}

func TestSetField(t *testing.T) {
	s := &TextSlide{}
	if err := SetField(s, FieldTitle, "Hello"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if s.Label != "Hello" {
		t.Fatalf("title should mirror into empty label, got %q", s.Label)
	}
	if err := SetField(s, FieldTitle, "Changed"); err != nil {
		t.Fatalf("set title: %v", err)
	}
	if s.Label != "Hello" {
		t.Fatalf("non-empty label must not follow title, got %q", s.Label)
	}
	if err := SetField(s, FieldAlign, "right"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("align right: err=%v", err)
	}
	if err := SetField(s, FieldImageFit, "cover"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("imageFit on text: err=%v", err)
	}
	img := &ImageSlide{ImageFit: FitCover}
	if err := SetField(img, FieldImageFit, "contain"); err != nil || img.ImageFit != FitContain {
		t.Fatalf("imageFit: err=%v fit=%q", err, img.ImageFit)
	}
	if err := SetField(img, FieldBody, "x"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("body on image: err=%v", err)
	}
	if err := SetField(img, FieldLabel, "renamed"); err != nil || img.Label != "renamed" {
		t.Fatalf("label on image: err=%v label=%q", err, img.Label)
	}
}
