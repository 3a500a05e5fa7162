/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/friendsincode/relaycast/internal/config"
)

var (
	flagHost string
	flagPort int
)

var rootCmd = &cobra.Command{
	Use:   "relaycast",
	Short: "WebRTC broadcast relay server",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagHost, "host", "", "HTTP bind address (overrides RELAYCAST_HTTP_BIND)")
	serveCmd.Flags().IntVar(&flagPort, "port", 0, "HTTP port (overrides RELAYCAST_HTTP_PORT)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlagOverrides lets CLI flags win over environment variables, per
// spec.md §6's `--host`/`--port` contract.
func applyFlagOverrides(cfg *config.Config) {
	if flagHost != "" {
		cfg.HTTPBind = flagHost
	}
	if flagPort != 0 {
		cfg.HTTPPort = flagPort
	}
}
