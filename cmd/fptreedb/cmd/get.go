package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Find the value for a key",
	Long: `Find a value for a key in the fptreedb store.

Example:
  fptreedb get 42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("key must be a u64: %w", err)
		}

		tree, err := treeFromContext(cmd)
		if err != nil {
			return err
		}

		value, found := tree.Find(key)
		if !found {
			return fmt.Errorf("key %d not found", key)
		}

		fmt.Printf("%d\n", value)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
