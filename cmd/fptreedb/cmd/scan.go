package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <start> <n>",
	Short: "Range-scan up to n keys starting at start",
	Long: `List up to n key-value pairs whose key is >= start.

Example:
  fptreedb scan 0 100`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("start must be a u64: %w", err)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("n must be a positive integer")
		}

		tree, err := treeFromContext(cmd)
		if err != nil {
			return err
		}

		for _, kv := range tree.RangeScan(start, n) {
			fmt.Printf("%d\t%d\n", kv.Key, kv.Value)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
