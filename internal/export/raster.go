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
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/textlayout"
)

// RasterOptions controls text slide rasterisation.
// Scale multiplies the 540x960 stage; 2 gives the 1080x1920 OBS source size.
type RasterOptions struct {
	Scale float64
	Fonts *textlayout.FontLibrary // nil uses the Go fonts
}

func (o RasterOptions) scale() float64 {
	if o.Scale <= 0 {
		return 2
	}
	return o.Scale
}

// padding and blockGap are in stage pixels.
const (
	paddingRatio = 0.08
	blockGap     = 16.0
)

type textBlock struct {
	face font.Face
	box  textlayout.TextBox
}

// RasterizeText draws a text slide the way the stage shows it: background
// fill, then eyebrow, title, body and footnote stacked and centred
// vertically, each word-wrapped to the padded stage width.
func RasterizeText(s *domain.TextSlide, opt RasterOptions) (*image.RGBA, error) {
	lib := opt.Fonts
	if lib == nil {
		var err error
		if lib, err = textlayout.GoFonts(); err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
	}
	scale := opt.scale()
	w := int(math.Round(domain.StageWidth * scale))
	h := int(math.Round(domain.StageHeight * scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: ParseHexColor(s.Background, domain.DefaultBackground)}, image.Point{}, draw.Src)

	provider := textlayout.OTProvider{Lib: lib, DPI: 72 * scale}
	layouter := textlayout.NewWordWrap(provider)
	pad := float64(w) * paddingRatio
	maxW := float32(float64(w) - 2*pad)

	var blocks []textBlock
	for _, part := range []struct {
		style string
		text  string
	}{
		{textlayout.StyleEyebrow, s.Eyebrow},
		{textlayout.StyleTitle, s.Title},
		{textlayout.StyleBody, s.Body},
		{textlayout.StyleFootnote, s.Footnote},
	} {
		if strings.TrimSpace(part.text) == "" {
			continue
		}
		st, _ := textlayout.GetStyle(part.style)
		st.Leading *= float32(scale)
		box, err := layouter.Layout([]textlayout.Span{st.Span(part.text)}, maxW)
		if err != nil {
			return nil, fmt.Errorf("layout %s: %w", part.style, err)
		}
		face, _ := provider.Resolve(st.Font)
		blocks = append(blocks, textBlock{face: face, box: box})
	}
	if len(blocks) == 0 {
		return img, nil
	}

	gap := float32(blockGap * scale)
	var total float32
	for i, b := range blocks {
		if i > 0 {
			total += gap
		}
		total += b.box.Height
	}
	top := (float32(h) - total) / 2
	if top < float32(pad) {
		top = float32(pad)
	}
	src := image.NewUniform(ParseHexColor(s.TextColor, domain.DefaultTextColor))
	for _, b := range blocks {
		d := &font.Drawer{Dst: img, Src: src, Face: b.face}
		for _, ln := range b.box.Lines {
			x := float32(pad)
			if s.Align != domain.AlignLeft {
				x = (float32(w) - ln.Width) / 2
			}
			d.Dot = fixed.P(int(x), int(top+b.box.Metrics.Ascent))
			d.DrawString(ln.Text)
			top += b.box.LineHeight
		}
		top += gap
	}
	return img, nil
}

// ParseHexColor reads #rgb, #rgba, #rrggbb or #rrggbbaa. Anything else
// yields def, which must itself be valid.
func ParseHexColor(s, def string) color.NRGBA {
	if c, ok := parseHex(s); ok {
		return c
	}
	c, _ := parseHex(def)
	return c
}

func parseHex(s string) (color.NRGBA, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 3, 4:
		var b strings.Builder
		for _, r := range s {
			b.WriteRune(r)
			b.WriteRune(r)
		}
		s = b.String()
	case 6, 8:
	default:
		return color.NRGBA{}, false
	}
	if len(s) == 6 {
		s += "ff"
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}
