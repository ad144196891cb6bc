/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes a deck out of the browser: the JSON backup document,
// a PDF handout and a ZIP of slide images.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/slot"
	"portraitdeck/internal/storage"
)

// ErrEmptyDeck is returned when there is nothing to export.
var ErrEmptyDeck = errors.New("deck has no slides")

// Format is an export file type.
type Format string

const (
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
	FormatZIP  Format = "zip"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatPDF, FormatZIP:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// FileName is the download name of an export of format f taken at now.
func FileName(f Format, now time.Time) string {
	return strings.TrimSuffix(storage.ExportFileName(now), ".json") + "." + string(f)
}

// ContentType is the MIME type served for format f.
func ContentType(f Format) string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatZIP:
		return "application/zip"
	default:
		return "application/json"
	}
}

// JSON writes the indented export document.
func JSON(w io.Writer, d domain.Deck) error {
	if d.Len() == 0 {
		return ErrEmptyDeck
	}
	data, err := domain.EncodeExport(d)
	if err != nil {
		return fmt.Errorf("encode deck: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Write renders format f of d into w.
func Write(w io.Writer, f Format, d domain.Deck) error {
	switch f {
	case FormatPDF:
		return PDF(w, d, PDFOptions{})
	case FormatZIP:
		return ZIP(w, d, ZIPOptions{})
	default:
		return JSON(w, d)
	}
}

// WriteFile renders format f of d and replaces path atomically.
func WriteFile(path string, f Format, d domain.Deck) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, d); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := slot.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", f, err)
	}
	return nil
}
