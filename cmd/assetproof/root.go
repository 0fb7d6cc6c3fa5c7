package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "assetproof",
		Short: "Build verifiable asset-balance records from attested exchange snapshots",
		Long: `assetproof verifies attested exchange account responses, aggregates the balances they
report per exchange and emits a public record carrying the attestation metadata.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadEnvFile(flags.envFile)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the YAML application config (defaults apply when empty)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Optional .env file loaded before the config (default: ./.env when present)")

	root.AddCommand(
		newRunCmd(flags),
		newBatchCmd(flags),
		newWatchCmd(flags),
		newServeCmd(flags),
		newMigrateCmd(flags),
		newSignCmd(),
	)
	return root
}

// loadEnvFile loads path into the process environment without overriding variables that are
// already set. An empty path loads ./.env when it exists.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
