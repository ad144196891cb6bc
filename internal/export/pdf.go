/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/imaging"
)

// PDFOptions controls the PDF handout.
// Units are points; one page is the 540x960 stage.
//
// Text uses the built-in Helvetica so nothing is embedded; image slides keep
// their PNG or JPEG bytes, other formats are re-encoded as PNG.
type PDFOptions struct {
	Title     string // document title; empty means "Portrait Slide Deck"
	PageLabel bool   // print "n / total" in the bottom corner
}

// PDF writes one page per slide to w.
func PDF(w io.Writer, d domain.Deck, opt PDFOptions) error {
	if d.Len() == 0 {
		return ErrEmptyDeck
	}
	pageW, pageH := float64(domain.StageWidth), float64(domain.StageHeight)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	title := opt.Title
	if title == "" {
		title = "Portrait Slide Deck"
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("portraitdeck", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, s := range d.Slides {
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: pageW, Ht: pageH})
		switch v := s.(type) {
		case *domain.TextSlide:
			drawTextPage(pdf, tr, v, pageW, pageH)
		case *domain.ImageSlide:
			if err := drawImagePage(pdf, fmt.Sprintf("slide-%d", i+1), v, pageW, pageH); err != nil {
				return fmt.Errorf("slide %d: %w", i+1, err)
			}
		}
		if opt.PageLabel {
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(148, 163, 184)
			pdf.Text(pageW-48, pageH-14, fmt.Sprintf("%d / %d", i+1, d.Len()))
		}
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("slide %d: %w", i+1, err)
		}
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setFill(pdf *gofpdf.Fpdf, hex, def string) {
	c := ParseHexColor(hex, def)
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}

func setText(pdf *gofpdf.Fpdf, hex, def string) {
	c := ParseHexColor(hex, def)
	pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
}

// drawTextPage mirrors RasterizeText: parts stacked and centred vertically
// inside the padded page.
func drawTextPage(pdf *gofpdf.Fpdf, tr func(string) string, s *domain.TextSlide, pageW, pageH float64) {
	setFill(pdf, s.Background, domain.DefaultBackground)
	pdf.Rect(0, 0, pageW, pageH, "F")
	setText(pdf, s.TextColor, domain.DefaultTextColor)

	align := "C"
	if s.Align == domain.AlignLeft {
		align = "L"
	}
	pad := pageW * paddingRatio
	innerW := pageW - 2*pad

	type part struct {
		text  string
		style string
		size  float64
		lines [][]byte
	}
	parts := []part{
		{text: s.Eyebrow, style: "B", size: 18},
		{text: s.Title, style: "B", size: 48},
		{text: s.Body, style: "", size: 26},
		{text: s.Footnote, style: "I", size: 16},
	}
	var total float64
	var used []part
	for _, p := range parts {
		if p.text == "" {
			continue
		}
		pdf.SetFont("Helvetica", p.style, p.size)
		p.lines = pdf.SplitLines([]byte(tr(p.text)), innerW)
		if len(used) > 0 {
			total += blockGap
		}
		total += float64(len(p.lines)) * p.size * 1.2
		used = append(used, p)
	}
	y := (pageH - total) / 2
	if y < pad {
		y = pad
	}
	for _, p := range used {
		pdf.SetFont("Helvetica", p.style, p.size)
		lh := p.size * 1.2
		for _, ln := range p.lines {
			pdf.SetXY(pad, y)
			pdf.CellFormat(innerW, lh, string(ln), "", 0, align, false, 0, "")
			y += lh
		}
		y += blockGap
	}
}

// drawImagePage fills the page black and places the image with the slide's
// fit. Cover crops to the page; contain letterboxes.
func drawImagePage(pdf *gofpdf.Fpdf, name string, s *domain.ImageSlide, pageW, pageH float64) error {
	mime, data, err := imaging.ParseDataURL(s.ImageData)
	if err != nil {
		return err
	}
	imgType := ""
	switch mime {
	case imaging.MIMEPNG:
		imgType = "PNG"
	case imaging.MIMEJPEG, "image/jpg":
		imgType = "JPG"
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("decode %s: %w", mime, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("re-encode %s: %w", mime, err)
		}
		data, imgType = buf.Bytes(), "PNG"
	}
	pdf.SetFillColor(0, 0, 0)
	pdf.Rect(0, 0, pageW, pageH, "F")

	opts := gofpdf.ImageOptions{ImageType: imgType}
	info := pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if info == nil {
		return pdf.Error()
	}
	x, y, w, h := fitRect(info.Width(), info.Height(), pageW, pageH, s.ImageFit)
	pdf.ClipRect(0, 0, pageW, pageH, false)
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	pdf.ClipEnd()
	return nil
}

// fitRect places a srcW x srcH image into a boxW x boxH box, centred.
func fitRect(srcW, srcH, boxW, boxH float64, fit domain.Fit) (x, y, w, h float64) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, boxW, boxH
	}
	sx, sy := boxW/srcW, boxH/srcH
	scale := sx
	if fit == domain.FitContain {
		if sy < scale {
			scale = sy
		}
	} else if sy > scale {
		scale = sy
	}
	w, h = srcW*scale, srcH*scale
	return (boxW - w) / 2, (boxH - h) / 2, w, h
}
