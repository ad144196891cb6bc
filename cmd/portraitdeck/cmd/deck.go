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
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"portraitdeck/internal/deck"
	"portraitdeck/internal/domain"
	"portraitdeck/internal/export"
	"portraitdeck/internal/slot"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the deck with an exported deck file",
	Long: `Replace the deck in the slot with a JSON deck export.

Open windows pick the new deck up immediately. Oversized pictures in the file
are scaled down before the command returns.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		sl, err := openSlot(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = sl.Close() }()

		sess := cliSession(ctx, sl)
		rep, err := sess.Import(ctx, data)
		if err != nil {
			return fmt.Errorf("%s: %w", domain.ImportFailedMessage, err)
		}
		if msg := sess.State().View.StorageError; msg != "" {
			return errors.New(msg)
		}
		logger.Info("deck imported", slog.String("file", args[0]), slog.Int("slides", rep.Accepted))
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d slides", rep.Accepted, rep.Received)
		if rep.Dropped > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), " (%d unusable dropped)", rep.Dropped)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

// exportFlags are shared by export, pdf and zip.
type exportFlags struct {
	out     string
	formats string
}

func newExportCmd(use, short string, fixed export.Format) *cobra.Command {
	var f exportFlags
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			formats := []export.Format{fixed}
			if fixed == "" {
				formats = nil
				for _, v := range strings.Split(f.formats, ",") {
					if strings.TrimSpace(v) == "" {
						continue
					}
					ft, err := export.ParseFormat(v)
					if err != nil {
						return err
					}
					formats = append(formats, ft)
				}
			}
			return runExport(cmd, formats, f.out)
		},
	}
	c.Flags().StringVarP(&f.out, "out", "o", ".", "output directory")
	if fixed == "" {
		c.Flags().StringVarP(&f.formats, "format", "f", string(export.FormatJSON), "comma-separated formats: json, pdf, zip")
	}
	return c
}

func runExport(cmd *cobra.Command, formats []export.Format, out string) error {
	ctx := cmd.Context()
	sl, err := openSlot(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sl.Close() }()

	d := readOnlyStore(sl).Load(ctx)
	if d.Len() == 0 {
		return fmt.Errorf("nothing to export: %w", deck.ErrNothingToExport)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	paths, err := export.Batch(d, export.BatchOptions{Formats: formats, OutDir: out, Now: time.Now()})
	for _, p := range paths {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return err
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear every slide and remove the saved deck",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes {
			return fmt.Errorf("%s\nRe-run with --yes to confirm", deck.ResetConfirmMessage)
		}
		ctx := cmd.Context()
		sl, err := openSlot(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = sl.Close() }()
		if err := cliSession(ctx, sl).ResetStorage(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Deck storage cleared.")
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Put the newest backup of the deck back in place",
	Long: `Copy the newest timestamped backup of the deck back into the file slot.
Open windows pick it up immediately. Only the file slot keeps backups.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		sl, err := openSlot(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = sl.Close() }()
		fileSlot, ok := sl.(*slot.File)
		if !ok {
			return fmt.Errorf("restore needs the file slot, not %q", cfg.Slot.Kind)
		}
		data, err := fileSlot.Restore(ctx, domain.StorageKey, cliOrigin)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		snap, err := domain.ParseSnapshot(data)
		if err != nil {
			logger.Warn("restored backup does not parse", slog.Any("err", err))
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored deck with %d slides.\n", snap.Deck.Len())
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "confirm the reset")
	rootCmd.AddCommand(importCmd, resetCmd, restoreCmd,
		newExportCmd("export", "Write the deck as JSON, PDF and/or ZIP files", ""),
		newExportCmd("pdf", "Write a PDF handout with one page per slide", export.FormatPDF),
		newExportCmd("zip", "Write every slide as an image into a ZIP archive", export.FormatZIP),
	)
}
