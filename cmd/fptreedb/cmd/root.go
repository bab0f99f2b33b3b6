/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fptreedb/fptree/pkg/config"
	"github.com/fptreedb/fptree/pkg/fptree"
	"github.com/fptreedb/fptree/pkg/pmem"
)

// dataDir is the shared --data-dir flag value, bound once as a persistent
// flag on rootCmd and read by the subcommands that open the store directly.
var dataDir string

type treeContextKey struct{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fptreedb",
	Short: "fptreedb - a concurrent, persistence-aware key-value store",
	Long: `fptreedb is a fingerprinting B+-tree key-value store: fixed-capacity
leaf nodes with a bitmap and fingerprint array, volatile inner nodes, a
hybrid optimistic/HTM-style concurrency protocol, and crash-consistent
split/delete undo logs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("data-dir")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}

		tree, _, err := openTree(dir)
		if err != nil {
			return err
		}

		cmd.SetContext(context.WithValue(cmd.Context(), treeContextKey{}, tree))
		return nil
	},
}

// openTree loads (or bootstraps) the config in dir and opens the mmap-backed
// pool and tree it describes.
func openTree(dir string) (*fptree.Tree, *config.Config, error) {
	configPath := filepath.Join(dir, "config.yaml")

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg.DataDir = dir
		if err := config.SaveConfig(cfg, configPath); err != nil {
			return nil, nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	pool, err := pmem.Open(pmem.Config{
		Path:         filepath.Join(dir, "pool.db"),
		LeafCapacity: cfg.Tree.LeafCapacity,
		NumLeafSlots: cfg.Tree.NumLeafSlots,
		NumLogSlots:  cfg.Tree.NumLogSlots,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open pool: %w", err)
	}

	tree, err := fptree.New(pool, cfg.Tree.LeafCapacity, cfg.Tree.InnerCapacity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tree: %w", err)
	}

	return tree, cfg, nil
}

// treeFromContext retrieves the tree opened by rootCmd's PersistentPreRunE.
func treeFromContext(cmd *cobra.Command) (*fptree.Tree, error) {
	tree, ok := cmd.Context().Value(treeContextKey{}).(*fptree.Tree)
	if !ok {
		return nil, fmt.Errorf("tree not found in command context")
	}
	return tree, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Data directory for the store")
}
