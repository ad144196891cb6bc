/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// SampleDeck returns the three-card starter deck with fresh ids, live on the
// first card.
func SampleDeck() Deck {
	now := NowMillis()
	slides := []Slide{
		&TextSlide{
			SlideMeta:  SlideMeta{ID: NewID(), Label: "Tonight's Headlines", CreatedAt: now},
			Eyebrow:    "Tonight",
			Title:      "Headlines To Watch",
			Body:       "🏛️ Capitol Hill budget showdown\n🌐 TikTok ban showdown\n🚀 Falcon booster static fire",
			Footnote:   "Portrait Slide Deck",
			Background: DefaultBackground,
			TextColor:  DefaultTextColor,
			Align:      AlignCenter,
		},
		&TextSlide{
			SlideMeta:  SlideMeta{ID: NewID(), Label: "Upcoming Guests", CreatedAt: now},
			Eyebrow:    "Guests",
			Title:      "On Deck This Hour",
			Body:       "• Dr. Alexis Monroe, AI & Policy\n• Brian Lopez, Primary map math\n• Jay Kincaid, Meme desk remix",
			Background: "#0b3b5e",
			TextColor:  "#e2e8f0",
			Align:      AlignLeft,
		},
		&TextSlide{
			SlideMeta:  SlideMeta{ID: NewID(), Label: "Call To Action", CreatedAt: now},
			Title:      "Subscribe & Jump In Chat",
			Body:       "Drop your spicy takes live.\nWe read the best ones on-air every block.",
			Footnote:   "@YourHandle • Portrait Slide Deck",
			Background: "#111827",
			TextColor:  "#fef3c7",
			Align:      AlignCenter,
		},
	}
	return Deck{Slides: slides, CurrentIndex: 0}
}
