/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/image/bmp"

	"portraitdeck/internal/domain"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func pngURL(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return DataURL(MIMEPNG, buf.Bytes())
}

func decodeURL(t *testing.T, s string) image.Image {
	t.Helper()
	_, raw, err := ParseDataURL(s)
	if err != nil {
		t.Fatalf("parse data url: %v", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func TestTargetSize(t *testing.T) {
	cases := []struct{ w, h, tw, th int }{
		{1080, 1920, 1080, 1920},
		{500, 500, 500, 500},
		{2160, 3840, 1080, 1920},
		{4000, 1000, 1080, 270},
		{1, 100000, 1, 1920},
	}
	for _, c := range cases {
		tw, th := TargetSize(c.w, c.h, DefaultMaxWidth, DefaultMaxHeight)
		if tw != c.tw || th != c.th {
			t.Fatalf("TargetSize(%d,%d)=(%d,%d) want (%d,%d)", c.w, c.h, tw, th, c.tw, c.th)
		}
	}
}

func TestNormalizeLeavesSmallImagesAlone(t *testing.T) {
	in := pngURL(t, solid(40, 60, color.NRGBA{R: 200, A: 255}))
	res := New().Normalize(in, MIMEPNG)
	if res.Err != nil || res.Changed || res.Payload != in {
		t.Fatalf("expected untouched payload, got changed=%v err=%v", res.Changed, res.Err)
	}
	if res.Width != 40 || res.Height != 60 {
		t.Fatalf("size=%dx%d want 40x60", res.Width, res.Height)
	}
}

func TestNormalizeSquarePosterFitsPortraitBounds(t *testing.T) {
	in := pngURL(t, solid(4000, 4000, color.NRGBA{R: 30, G: 90, B: 160, A: 255}))
	n := &Normalizer{MaxWidth: 1080, MaxHeight: 1920}
	res := n.Normalize(in, MIMEPNG)
	if res.Err != nil || !res.Changed || res.MIME != MIMEJPEG {
		t.Fatalf("expected jpeg output, changed=%v mime=%q err=%v", res.Changed, res.MIME, res.Err)
	}
	b := decodeURL(t, res.Payload).Bounds()
	if b.Dx() > 1080 || b.Dy() > 1920 {
		t.Fatalf("output %dx%d exceeds 1080x1920", b.Dx(), b.Dy())
	}
	// The width ratio binds, and a square stays square.
	if b.Dx() != 1080 || b.Dy() != 1080 {
		t.Fatalf("output %dx%d want 1080x1080", b.Dx(), b.Dy())
	}
}

func TestNormalizeTwiceEqualsOnce(t *testing.T) {
	inputs := []string{
		pngURL(t, solid(40, 60, color.NRGBA{R: 200, A: 255})),
		pngURL(t, solid(2200, 100, color.NRGBA{G: 128, B: 255, A: 255})),
	}
	n := New()
	for i, in := range inputs {
		once := n.Normalize(in, MIMEPNG)
		twice := n.Normalize(once.Payload, "")
		if once.Err != nil || twice.Err != nil {
			t.Fatalf("input %d: errors %v / %v", i, once.Err, twice.Err)
		}
		if twice.Changed || twice.Payload != once.Payload {
			t.Fatalf("input %d: second pass changed the payload", i)
		}
		if len(twice.Payload) != len(once.Payload) || twice.Width != once.Width || twice.Height != once.Height {
			t.Fatalf("input %d: %dx%d/%d vs %dx%d/%d", i,
				once.Width, once.Height, len(once.Payload), twice.Width, twice.Height, len(twice.Payload))
		}
	}
}

func TestNormalizeConvertsBitmapsBrowsersMayNotShow(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, solid(200, 300, color.NRGBA{R: 90, G: 90, B: 90, A: 255})); err != nil {
		t.Fatalf("bmp encode: %v", err)
	}
	res := New().NormalizeBytes(buf.Bytes(), "image/bmp")
	if res.Err != nil || !res.Changed || res.MIME != MIMEJPEG {
		t.Fatalf("bmp should become jpeg, changed=%v mime=%q err=%v", res.Changed, res.MIME, res.Err)
	}
	if res.Width != 200 || res.Height != 300 {
		t.Fatalf("size %dx%d want 200x300", res.Width, res.Height)
	}
	if !Viewable(res.Payload) {
		t.Fatalf("converted payload is not viewable")
	}
}

func TestNormalizeRefusesTooManyPixels(t *testing.T) {
	in := pngURL(t, solid(20, 20, color.NRGBA{A: 255}))
	n := New()
	n.MaxPixels = 399
	res := n.Normalize(in, MIMEPNG)
	if !errors.Is(res.Err, ErrTooLarge) || !errors.Is(res.Err, ErrDecode) {
		t.Fatalf("err=%v want ErrTooLarge", res.Err)
	}
	if res.Changed || res.Payload != in {
		t.Fatalf("payload must be returned unchanged")
	}
	n.MaxPixels = 400
	if res := n.Normalize(in, MIMEPNG); res.Err != nil {
		t.Fatalf("image at the limit refused: %v", res.Err)
	}
}

func TestNormalizeDownscalesOpaquePNGToJPEG(t *testing.T) {
	in := pngURL(t, solid(2200, 100, color.NRGBA{G: 128, B: 255, A: 255}))
	res := New().Normalize(in, MIMEPNG)
	if res.Err != nil || !res.Changed {
		t.Fatalf("expected change, err=%v", res.Err)
	}
	if res.MIME != MIMEJPEG || !strings.HasPrefix(res.Payload, "data:image/jpeg;base64,") {
		t.Fatalf("opaque png should become jpeg, got %q", res.MIME)
	}
	out := decodeURL(t, res.Payload)
	if b := out.Bounds(); b.Dx() != 1080 || b.Dy() != 49 {
		t.Fatalf("output size %dx%d want 1080x49", b.Dx(), b.Dy())
	}
}

func TestNormalizeKeepsTransparentPNG(t *testing.T) {
	img := solid(2200, 20, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	for x := 0; x < 200; x++ {
		for y := 0; y < 20; y++ {
			img.SetNRGBA(x, y, color.NRGBA{})
		}
	}
	res := New().Normalize(pngURL(t, img), MIMEPNG)
	if res.Err != nil || !res.Changed {
		t.Fatalf("expected change, err=%v", res.Err)
	}
	if res.MIME != MIMEPNG {
		t.Fatalf("transparent png must stay png, got %q", res.MIME)
	}
	if !HasTransparency(decodeURL(t, res.Payload)) {
		t.Fatalf("transparency lost")
	}
}

func TestNormalizeReencodesOversizedPayloadWithoutResize(t *testing.T) {
	src := solid(64, 64, color.NRGBA{R: 255, G: 255, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	in := DataURL(MIMEJPEG, buf.Bytes())
	n := New()
	n.MaxPayloadLen = 16
	res := n.Normalize(in, "image/pjpeg")
	if res.Err != nil || !res.Changed || res.MIME != MIMEJPEG {
		t.Fatalf("expected jpeg re-encode, changed=%v mime=%q err=%v", res.Changed, res.MIME, res.Err)
	}
	if res.Width != 64 || res.Height != 64 {
		t.Fatalf("size changed: %dx%d", res.Width, res.Height)
	}
}

func TestNormalizeUnknownSourceBecomesJPEG(t *testing.T) {
	in := pngURL(t, solid(1200, 10, color.NRGBA{A: 255}))
	res := New().Normalize(in, "image/webp")
	if res.MIME != MIMEJPEG {
		t.Fatalf("unknown source type should map to jpeg, got %q", res.MIME)
	}
}

func TestNormalizeFallsBackOnBadInput(t *testing.T) {
	for _, in := range []string{"data:image/png;base64,AAAA", "not a data url", "data:image/png;base64,%%%"} {
		res := New().Normalize(in, MIMEPNG)
		if !errors.Is(res.Err, ErrDecode) {
			t.Fatalf("Normalize(%q) err=%v want ErrDecode", in, res.Err)
		}
		if res.Payload != in || res.Changed {
			t.Fatalf("payload must be returned unchanged on failure")
		}
	}
}

func TestNormalizeBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(3, 3, color.NRGBA{A: 255})); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	res := New().NormalizeBytes(buf.Bytes(), MIMEPNG)
	if res.Err != nil || !strings.HasPrefix(res.Payload, "data:image/png;base64,") {
		t.Fatalf("unexpected result: err=%v payload prefix=%q", res.Err, res.Payload[:min(len(res.Payload), 30)])
	}
}

func TestHasTransparency(t *testing.T) {
	if !HasTransparency(nil) {
		t.Fatalf("nil image should count as transparent")
	}
	if HasTransparency(solid(4, 4, color.NRGBA{A: 255})) {
		t.Fatalf("opaque image reported transparent")
	}
	gray := image.NewGray(image.Rect(0, 0, 4, 4))
	if HasTransparency(gray) {
		t.Fatalf("gray image has no alpha")
	}
}

func TestParseDataURL(t *testing.T) {
	mime, data, err := ParseDataURL("data:text/plain,hello%20world")
	if err != nil || mime != "text/plain" || string(data) != "hello world" {
		t.Fatalf("percent form: mime=%q data=%q err=%v", mime, data, err)
	}
	mime, data, err = ParseDataURL(DataURL("Image/PNG", []byte{1, 2, 3}))
	if err != nil || mime != "image/png" || !bytes.Equal(data, []byte{1, 2, 3}) {
		t.Fatalf("base64 form: mime=%q data=%v err=%v", mime, data, err)
	}
	if _, _, err := ParseDataURL("http://example.com/x.png"); !errors.Is(err, ErrNotDataURL) {
		t.Fatalf("expected ErrNotDataURL, got %v", err)
	}
	if got := MIMEFromDataURL("DATA:Image/JPEG;base64,xx"); got != "image/jpeg" {
		t.Fatalf("MIMEFromDataURL=%q", got)
	}
	if got := MIMEFromDataURL("plain"); got != "" {
		t.Fatalf("MIMEFromDataURL(plain)=%q", got)
	}
}

func TestNeedsSweep(t *testing.T) {
	n := New()
	n.MaxPayloadLen = 10
	big := &domain.ImageSlide{ImageData: strings.Repeat("x", 11)}
	if !n.NeedsSweep(big) {
		t.Fatalf("oversized unoptimised image should need a sweep")
	}
	big.ImageOptimized = true
	if n.NeedsSweep(big) {
		t.Fatalf("optimised image must be skipped")
	}
	if n.NeedsSweep(&domain.ImageSlide{ImageData: "short"}) {
		t.Fatalf("small image must be skipped")
	}
	if n.NeedsSweep(&domain.TextSlide{Body: strings.Repeat("x", 50)}) {
		t.Fatalf("text slides never need a sweep")
	}
}
