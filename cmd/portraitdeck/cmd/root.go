/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cmd holds the portraitdeck command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"portraitdeck/internal/config"
	"portraitdeck/internal/crash"
	"portraitdeck/internal/deck"
	applog "portraitdeck/internal/log"
	"portraitdeck/internal/slot"
	"portraitdeck/internal/storage"
)

// cliOrigin stamps slot writes made from the command line.
const cliOrigin = "cli"

var (
	cfgFile  string
	verbose  bool
	slotKind string
	slotPath string
	cfg      config.AppConfig
	logger   *slog.Logger

	crashTarget = &crash.Target{}
)

var rootCmd = &cobra.Command{
	Use:   "portraitdeck",
	Short: "Portrait slide deck for streaming overlays",
	Long: `portraitdeck serves a control window that builds a deck of portrait
text and image slides, plus a display window to capture in OBS and a compact
remote. All windows stay in sync through one shared storage slot.

The other commands work on the same slot while the server runs or not.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		if cfgFile != "" {
			cfg, err = config.LoadFile(cfgFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if slotKind != "" {
			cfg.Slot.Kind = strings.ToLower(slotKind)
		}
		if slotPath != "" {
			cfg.Slot.Path = slotPath
		}
		lo := cfg.LogOptions()
		if verbose {
			lo.Level = "debug"
		}
		applog.Init(lo)
		logger = applog.WithComponent("cli")
		if p, err := config.ConfigPath(); err == nil {
			crashTarget.Dir = filepath.Join(filepath.Dir(p), "crash")
		}
		return nil
	},
}

// Execute runs the root command with a background context.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// CrashTarget is where a panic report and the last deck go. The serve
// command fills in the deck source once the slot is open.
func CrashTarget() *crash.Target { return crashTarget }

func openSlot(ctx context.Context) (slot.Slot, error) {
	s, err := slot.Open(ctx, cfg.SlotOptions())
	if err != nil {
		return nil, fmt.Errorf("open %s slot: %w", cfg.Slot.Kind, err)
	}
	logger.Debug("slot opened", slog.String("kind", cfg.Slot.Kind), slog.String("path", cfg.Slot.Path))
	return s, nil
}

// readOnlyStore reads the deck without ever writing to the slot.
func readOnlyStore(s slot.Slot) *storage.DeckStore {
	return storage.NewDeckStore(s, storage.Options{Origin: cliOrigin, ReadOnly: true})
}

// cliSession is a control session on the slot, used by commands that change
// the deck the same way the control window does.
func cliSession(ctx context.Context, s slot.Slot) *deck.Session {
	return deck.NewSession(ctx, deck.Options{
		WindowID:    cliOrigin,
		Role:        deck.RoleControl,
		Store:       storage.NewDeckStore(s, storage.Options{Origin: cliOrigin}),
		Normalizer:  cfg.Normalizer(),
		Concurrency: cfg.Server.Workers,
	})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: per-user config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&slotKind, "slot", "", "slot backend: memory, file or sqlite (overrides config)")
	rootCmd.PersistentFlags().StringVar(&slotPath, "slot-path", "", "slot directory or database file (overrides config)")
}
