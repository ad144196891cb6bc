/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// ErrNotDataURL is returned for payloads that are not data: URLs.
var ErrNotDataURL = errors.New("not a data URL")

// DataURL encodes b as a base64 data URL of the given MIME type.
func DataURL(mime string, b []byte) string {
	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mime) + base64.StdEncoding.EncodedLen(len(b)))
	sb.WriteString("data:")
	sb.WriteString(mime)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(b))
	return sb.String()
}

// ParseDataURL splits a data URL into its MIME type and decoded bytes.
// Both base64 and percent-encoded bodies are accepted.
func ParseDataURL(s string) (mime string, data []byte, err error) {
	if len(s) < 5 || !strings.EqualFold(s[:5], "data:") {
		return "", nil, ErrNotDataURL
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return "", nil, ErrNotDataURL
	}
	header, body := s[5:comma], s[comma+1:]
	params := strings.Split(header, ";")
	mime = strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(body)
		if err != nil {
			// Some encoders drop padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
		}
		if err != nil {
			return mime, nil, err
		}
		return mime, data, nil
	}
	dec, err := url.PathUnescape(body)
	if err != nil {
		return mime, nil, err
	}
	return mime, []byte(dec), nil
}

// MIMEFromDataURL returns the lower-cased MIME type of a data URL, or "".
func MIMEFromDataURL(s string) string {
	if len(s) < 5 || !strings.EqualFold(s[:5], "data:") {
		return ""
	}
	rest := s[5:]
	if i := strings.IndexAny(rest, ";,"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(strings.TrimSpace(rest))
}

// Types the normaliser stores as they are when they fit the budget.
var passThrough = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/gif":  true,
	"image/webp": true,
}

// Further raster types browsers draw in an img element. Payloads of these
// types are only stored unconverted when they could not be decoded here.
var browserOnly = map[string]bool{
	"image/avif":               true,
	"image/apng":               true,
	"image/bmp":                true,
	"image/x-ms-bmp":           true,
	"image/x-icon":             true,
	"image/vnd.microsoft.icon": true,
}

// Displayable reports whether mime is kept as is by Normalize. Anything else
// that decodes is re-encoded.
func Displayable(mime string) bool {
	return passThrough[strings.ToLower(strings.TrimSpace(mime))]
}

// Viewable reports whether s is a raster data URL a browser can draw.
// Scriptable types such as SVG are not.
func Viewable(s string) bool {
	m := MIMEFromDataURL(s)
	return passThrough[m] || browserOnly[m]
}
