package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Insert a key-value pair",
	Long: `Insert a key-value pair into the fptreedb store. Fails if the key
already exists; the CLI has no update command (the HTTP API's
PATCH /api/v1/kv/{key} updates an existing key).

Example:
  fptreedb put 42 100`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("key must be a u64: %w", err)
		}
		value, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("value must be a u64: %w", err)
		}

		tree, err := treeFromContext(cmd)
		if err != nil {
			return err
		}

		ok, err := tree.Insert(key, value)
		if err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("key %d already exists", key)
		}

		fmt.Printf("Inserted %d -> %d\n", key, value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)
}
