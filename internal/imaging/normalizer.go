/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imaging keeps slide images within the storage budget: it decodes a
// data URL payload, scales it into the stage bounds and re-encodes it as PNG
// or JPEG. Normalisation is best effort; on any failure the original payload
// is handed back together with the reason.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"portraitdeck/internal/domain"
	applog "portraitdeck/internal/log"
)

// Defaults: twice the stage size and roughly 2 MB of raw image data.
const (
	DefaultMaxWidth      = domain.StageWidth * 2
	DefaultMaxHeight     = domain.StageHeight * 2
	DefaultMaxPayloadLen = 2_600_000
	DefaultJPEGQuality   = 92
	DefaultMaxPixels     = 50_000_000
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

// ErrDecode wraps failures to read pixels out of a payload.
var ErrDecode = errors.New("image could not be decoded")

// ErrTooLarge wraps sources whose pixel count is over the decode limit.
// It also matches ErrDecode.
var ErrTooLarge = fmt.Errorf("%w: too many pixels", ErrDecode)

// ErrEncode wraps failures to write the rescaled raster.
var ErrEncode = errors.New("image could not be encoded")

// Normalizer scales and re-encodes images. The zero value uses the defaults.
type Normalizer struct {
	MaxWidth      int
	MaxHeight     int
	MaxPayloadLen int // in characters of the data URL
	JPEGQuality   int // 1..100
	MaxPixels     int // larger sources are not decoded
	Logger        *slog.Logger
}

// New returns a Normalizer with the default budget.
func New() *Normalizer {
	return &Normalizer{
		MaxWidth:      DefaultMaxWidth,
		MaxHeight:     DefaultMaxHeight,
		MaxPayloadLen: DefaultMaxPayloadLen,
		JPEGQuality:   DefaultJPEGQuality,
		MaxPixels:     DefaultMaxPixels,
	}
}

// Result is the outcome of one normalisation. Payload is always usable: on
// failure it is the input and Err says why.
type Result struct {
	Payload string
	Changed bool
	Width   int // decoded size, or the output size when Changed
	Height  int
	MIME    string
	Err     error
}

func (n *Normalizer) maxW() int {
	if n == nil || n.MaxWidth <= 0 {
		return DefaultMaxWidth
	}
	return n.MaxWidth
}

func (n *Normalizer) maxH() int {
	if n == nil || n.MaxHeight <= 0 {
		return DefaultMaxHeight
	}
	return n.MaxHeight
}

// Budget returns the payload length above which an image is re-encoded.
func (n *Normalizer) Budget() int {
	if n == nil || n.MaxPayloadLen <= 0 {
		return DefaultMaxPayloadLen
	}
	return n.MaxPayloadLen
}

func (n *Normalizer) maxPixels() int {
	if n == nil || n.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return n.MaxPixels
}

func (n *Normalizer) quality() int {
	if n == nil || n.JPEGQuality <= 0 || n.JPEGQuality > 100 {
		return DefaultJPEGQuality
	}
	return n.JPEGQuality
}

func (n *Normalizer) logger() *slog.Logger {
	if n != nil && n.Logger != nil {
		return n.Logger
	}
	return applog.WithComponent("imaging")
}

// TargetSize scales (w, h) down to fit (maxW, maxH) keeping the aspect ratio.
// Images that already fit are returned unchanged; scaled sides are at least 1.
func TargetSize(w, h, maxW, maxH int) (int, int) {
	scale := math.Min(1, math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h)))
	if scale == 1 {
		return w, h
	}
	tw := int(math.Max(1, math.Round(float64(w)*scale)))
	th := int(math.Max(1, math.Round(float64(h)*scale)))
	return tw, th
}

// OutputMIME picks the encoding for a rasterised image: PNG sources keep PNG
// only when some pixel is not fully opaque, everything else becomes JPEG.
func OutputMIME(sourceMIME string, img image.Image) string {
	if strings.ToLower(strings.TrimSpace(sourceMIME)) == MIMEPNG {
		if HasTransparency(img) {
			return MIMEPNG
		}
	}
	return MIMEJPEG
}

// HasTransparency scans the alpha channel. If the scan fails for any reason
// the image is treated as transparent.
func HasTransparency(img image.Image) (transparent bool) {
	defer func() {
		if r := recover(); r != nil {
			transparent = true
		}
	}()
	if img == nil {
		return true
	}
	if nr, ok := img.(*image.NRGBA); ok {
		for i := 3; i < len(nr.Pix); i += 4 {
			if nr.Pix[i] < 0xff {
				return true
			}
		}
		return false
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// Normalize brings a data URL payload within the size budget. sourceMIME is
// the declared type of the upload; when empty the data URL's own type is used.
func (n *Normalizer) Normalize(payload, sourceMIME string) Result {
	res := Result{Payload: payload, MIME: MIMEFromDataURL(payload)}
	if sourceMIME == "" {
		sourceMIME = res.MIME
	}
	_, raw, err := ParseDataURL(payload)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrDecode, err)
		return res
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrDecode, err)
		return res
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		res.Err = fmt.Errorf("%w: empty image", ErrDecode)
		return res
	}
	if cfg.Width > n.maxPixels()/cfg.Height {
		res.Err = fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, n.maxPixels())
		return res
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrDecode, err)
		return res
	}
	b := src.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()
	if res.Width <= 0 || res.Height <= 0 {
		res.Err = fmt.Errorf("%w: empty image", ErrDecode)
		return res
	}
	tw, th := TargetSize(res.Width, res.Height, n.maxW(), n.maxH())
	needsResize := tw != res.Width || th != res.Height
	if !needsResize && len(payload) <= n.Budget() && Displayable(res.MIME) {
		return res
	}

	dst := image.NewNRGBA(image.Rect(0, 0, tw, th))
	if needsResize {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	} else {
		draw.Copy(dst, image.Point{}, src, b, draw.Src, nil)
	}
	outMIME := OutputMIME(sourceMIME, dst)
	var buf bytes.Buffer
	if outMIME == MIMEPNG {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: n.quality()})
	}
	if err != nil || buf.Len() == 0 {
		res.Err = fmt.Errorf("%w: %v", ErrEncode, err)
		return res
	}
	res.Payload = DataURL(outMIME, buf.Bytes())
	res.Changed = true
	res.Width, res.Height = tw, th
	res.MIME = outMIME
	n.logger().Debug("image normalised",
		slog.String("source", sourceMIME),
		slog.String("output", outMIME),
		slog.Int("width", tw),
		slog.Int("height", th),
		slog.Int("before", len(payload)),
		slog.Int("after", len(res.Payload)),
	)
	return res
}

// NormalizeBytes wraps a raw upload into a data URL and normalises it.
func (n *Normalizer) NormalizeBytes(raw []byte, mime string) Result {
	return n.Normalize(DataURL(mime, raw), mime)
}

// NeedsSweep reports whether a stored slide should be re-normalised: an image
// slide over budget that has not been flagged optimised yet.
func (n *Normalizer) NeedsSweep(s domain.Slide) bool {
	img, ok := s.(*domain.ImageSlide)
	return ok && len(img.ImageData) > n.Budget() && !img.ImageOptimized
}
