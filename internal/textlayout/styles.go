/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// TextStyle is the font and line spacing of one text slide part. Sizes are
// in points on the 540x960 stage; Leading is extra pixels per line.
type TextStyle struct {
	Name    string
	Font    FontSpec
	Leading float32
}

// Names of the text slide parts, top to bottom.
const (
	StyleEyebrow  = "Eyebrow"
	StyleTitle    = "Title"
	StyleBody     = "Body"
	StyleFootnote = "Footnote"
)

var builtinStyles = map[string]TextStyle{
	StyleEyebrow:  {Name: StyleEyebrow, Font: FontSpec{Family: GoFamily, SizePt: 18, Weight: 700}, Leading: 4},
	StyleTitle:    {Name: StyleTitle, Font: FontSpec{Family: GoFamily, SizePt: 48, Weight: 700}, Leading: 6},
	StyleBody:     {Name: StyleBody, Font: FontSpec{Family: GoFamily, SizePt: 26, Weight: 400}, Leading: 10},
	StyleFootnote: {Name: StyleFootnote, Font: FontSpec{Family: GoFamily, SizePt: 16, Weight: 400, Italic: true}, Leading: 4},
}

// GetStyle returns a builtin style by name. The second return value is false
// if the style is not found.
func GetStyle(name string) (TextStyle, bool) { s, ok := builtinStyles[name]; return s, ok }

// ListStyles lists the builtin styles in stage order.
func ListStyles() []string {
	return []string{StyleEyebrow, StyleTitle, StyleBody, StyleFootnote}
}

// Span returns text as a span in this style.
func (s TextStyle) Span(text string) Span {
	return Span{Text: text, Font: s.Font, Leading: s.Leading}
}
