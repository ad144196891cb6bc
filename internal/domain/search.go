/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "strings"

// MatchesSearch reports whether the slide's label, title, body, footnote or
// eyebrow contains query, ignoring case. An empty query matches everything.
func MatchesSearch(s Slide, query string) bool {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return true
	}
	if s == nil {
		return false
	}
	fields := []string{s.Meta().Label}
	if t, ok := s.(*TextSlide); ok {
		fields = append(fields, t.Title, t.Body, t.Footnote, t.Eyebrow)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// Visible returns the indexes of slides matching query, in deck order.
func (d Deck) Visible(query string) []int {
	out := make([]int, 0, len(d.Slides))
	for i, s := range d.Slides {
		if MatchesSearch(s, query) {
			out = append(out, i)
		}
	}
	return out
}
