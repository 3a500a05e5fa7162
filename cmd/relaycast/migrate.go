/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/relaycast/internal/config"
	"github.com/friendsincode/relaycast/internal/db"
	"github.com/friendsincode/relaycast/internal/dispatchstore"
	"github.com/friendsincode/relaycast/internal/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the dispatcher persistence schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := logging.Setup(cfg.Environment)

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close(database)

	if err := dispatchstore.New(database).Migrate(); err != nil {
		return fmt.Errorf("migrate dispatcher store: %w", err)
	}

	logger.Info().Msg("dispatcher store schema up to date")
	return nil
}
