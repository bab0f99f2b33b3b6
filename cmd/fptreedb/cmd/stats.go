package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print tree occupancy and lock diagnostics",
	Long: `Print leaf/kv counts, fill ratio, and cumulative speculative-lock
retry/fallback counters.

Example:
  fptreedb stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := treeFromContext(cmd)
		if err != nil {
			return err
		}

		st := tree.Stats()
		retries, fallbacks := tree.LockStats()

		fmt.Printf("leaves:     %d\n", st.Leaves)
		fmt.Printf("kvs:        %d\n", st.KVs)
		fmt.Printf("leaf_cap:   %d\n", st.LeafCap)
		fmt.Printf("inner_cap:  %d\n", st.InnerCap)
		fmt.Printf("fill_ratio: %.4f\n", st.FillRatio)
		fmt.Printf("lock_retries:   %d\n", retries)
		fmt.Printf("lock_fallbacks: %d\n", fallbacks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
