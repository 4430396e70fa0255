// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/hubbub-social/hubbub/internal/config"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the Hubbub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hubbub",
		Short: "Hubbub - social backend auth service",
		Long: `Hubbub serves sign-up, sign-in, sessions and password reset for the
Hubbub social backend, backed by PostgreSQL, Redis streams and S3.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig reads configuration for a command using the global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flags(), config.LoadOptions{
		ConfigFile: configFile,
		DotEnvFile: envFile,
	})
}
