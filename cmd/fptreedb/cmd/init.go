/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fptreedb/fptree/pkg/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an fptreedb data directory",
	Long: `Initialize the fptreedb data directory: writes a config.yaml with a
generated client API key and the tree's tuning knobs, and formats the pool
file on first use.

Example:
  fptreedb init --data-dir=./data`,
	// Overrides rootCmd's PersistentPreRunE: init must run before any tree
	// or pool exists, so it skips openTree entirely.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		dir := dataDir
		force, _ := cmd.Flags().GetBool("force")

		if err := os.MkdirAll(dir, 0755); err != nil {
			cmd.PrintErrf("Error creating data directory: %v\n", err)
			os.Exit(1)
		}

		configPath := filepath.Join(dir, "config.yaml")
		if config.ConfigExists(configPath) && !force {
			cmd.Printf("Already initialized. Use --force to reinitialize.\n")
			cmd.Printf("Config location: %s\n", configPath)
			return
		}

		cfg, err := config.BootstrapConfig(configPath, dir)
		if err != nil {
			cmd.PrintErrf("Error bootstrapping config: %v\n", err)
			os.Exit(1)
		}

		cmd.Printf("Initialized fptreedb in %s\n", dir)
		cmd.Printf("Client API key: %s\n", cfg.Security.ClientAPIKey)
		cmd.Printf("\nStart the server with:\n")
		cmd.Printf("  fptreedb serve --data-dir=%s\n", dir)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Force reinitialization even if already configured")
}
