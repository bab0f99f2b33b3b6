package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a key",
	Long: `Delete a key from the fptreedb store.

Example:
  fptreedb delete 42`,
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

		ok, err := tree.DeleteKey(key)
		if err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("key %d not found", key)
		}

		fmt.Printf("Deleted %d\n", key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
