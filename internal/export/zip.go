/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image/png"
	"io"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/imaging"
)

// ManifestName is the deck document stored alongside the slide images.
const ManifestName = "deck.json"

// ZIPOptions controls the slide image archive.
type ZIPOptions struct {
	Raster       RasterOptions
	SkipManifest bool
}

// ZIP writes slide-NN.<ext> for every slide in deck order, plus the deck
// document as deck.json. Image slides keep their encoded bytes; text slides
// are rasterised to PNG.
func ZIP(w io.Writer, d domain.Deck, opt ZIPOptions) error {
	if d.Len() == 0 {
		return ErrEmptyDeck
	}
	zw := zip.NewWriter(w)
	pad := 2
	if n := d.Len(); n >= 1000 {
		pad = 4
	} else if n >= 100 {
		pad = 3
	}
	imgBuf := &bytes.Buffer{}
	for i, s := range d.Slides {
		var data []byte
		ext := "png"
		switch v := s.(type) {
		case *domain.TextSlide:
			img, err := RasterizeText(v, opt.Raster)
			if err != nil {
				return fmt.Errorf("slide %d: %w", i+1, err)
			}
			imgBuf.Reset()
			if err := png.Encode(imgBuf, img); err != nil {
				return fmt.Errorf("encode png: %w", err)
			}
			data = imgBuf.Bytes()
		case *domain.ImageSlide:
			mime, raw, err := imaging.ParseDataURL(v.ImageData)
			if err != nil {
				return fmt.Errorf("slide %d: %w", i+1, err)
			}
			data, ext = raw, extFor(mime)
		}
		name := fmt.Sprintf("slide-%0*d.%s", pad, i+1, ext)
		if err := addZipFile(zw, name, data); err != nil {
			return fmt.Errorf("zip add %s: %w", name, err)
		}
	}
	if !opt.SkipManifest {
		doc, err := domain.EncodeExport(d)
		if err != nil {
			return fmt.Errorf("encode manifest: %w", err)
		}
		if err := addZipFile(zw, ManifestName, doc); err != nil {
			return fmt.Errorf("zip add manifest: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func extFor(mime string) string {
	switch mime {
	case imaging.MIMEJPEG, "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
