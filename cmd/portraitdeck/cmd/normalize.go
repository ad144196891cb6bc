/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"portraitdeck/internal/imaging"
	"portraitdeck/internal/slot"
)

var normalizeOut string

var normalizeCmd = &cobra.Command{
	Use:   "normalize <image>",
	Short: "Scale and re-encode a picture the way uploads are",
	Long: `Run one picture through the same scaling and re-encoding as a slide
upload and write the result next to it (or to --out).

Pictures that already fit the budget are written unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		raw, err := os.ReadFile(in)
		if err != nil {
			return fmt.Errorf("read %s: %w", in, err)
		}
		mime := http.DetectContentType(raw)
		if !strings.HasPrefix(mime, "image/") {
			return fmt.Errorf("%s is not an image (%s)", in, mime)
		}
		res := cfg.Normalizer().NormalizeBytes(raw, mime)
		if res.Err != nil && errors.Is(res.Err, imaging.ErrDecode) {
			return fmt.Errorf("%s: %w", in, res.Err)
		}
		if res.Err != nil {
			logger.Warn("picture kept unoptimised", slog.String("file", in), slog.Any("err", res.Err))
		}
		outMIME, data, err := imaging.ParseDataURL(res.Payload)
		if err != nil {
			return err
		}
		out := normalizeOut
		if out == "" {
			out = normalizedName(in, outMIME)
		}
		if err := slot.WriteFileAtomic(out, data); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %dx%d %s, %d bytes (changed: %v)\n",
			out, res.Width, res.Height, outMIME, len(data), res.Changed)
		return nil
	},
}

// normalizedName turns "poster.webp" into "poster.normalized.jpg".
func normalizedName(in, mime string) string {
	ext := filepath.Ext(in)
	switch mime {
	case imaging.MIMEPNG:
		ext = ".png"
	case imaging.MIMEJPEG:
		ext = ".jpg"
	}
	base := strings.TrimSuffix(in, filepath.Ext(in))
	return base + ".normalized" + ext
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeOut, "out", "o", "", "output file")
	rootCmd.AddCommand(normalizeCmd)
}
