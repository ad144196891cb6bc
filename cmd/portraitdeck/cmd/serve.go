/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"portraitdeck/internal/domain"
	"portraitdeck/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the control, display and remote windows",
	Long: `Run the deck server in the foreground.

Open the printed address in a browser to get the control window. It pops out
the display (capture this one in OBS as a browser or window source) and the
remote. Every window reconnects on its own if the server restarts.

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	sl, err := openSlot(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sl.Close() }()

	rt, wt := cfg.Server.Timeouts()
	srv, err := server.New(server.Options{
		Addr:           cfg.Server.Addr,
		Slot:           sl,
		Normalizer:     cfg.Normalizer(),
		History:        cfg.HistoryConfig(),
		Concurrency:    cfg.Server.Workers,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		ReadTimeout:    rt,
		WriteTimeout:   wt,
	})
	if err != nil {
		return err
	}
	crashTarget.Deck = func() domain.Deck { return readOnlyStore(sl).Load(context.Background()) }

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Control window: http://%s/\n", cfg.Server.Addr)
	return srv.ListenAndServe(ctx)
}
