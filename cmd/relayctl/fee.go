package main

import "github.com/spf13/cobra"

var (
	feeMessageSize int
	feeTTL         int
	feePriority    float64
)

var feeCmd = &cobra.Command{
	Use:   "fee_calc",
	Short: "Compute fees via the node's fee calculator",
}

var feeCalculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate the fee for a hypothetical message",
	RunE: func(cmd *cobra.Command, _ []string) error {
		req := map[string]any{
			"message_size": feeMessageSize,
			"ttl":          feeTTL,
			"priority":     feePriority,
		}
		var resp any
		if err := postJSON("/fee_calc/calculate", req, &resp); err != nil {
			return err
		}
		return printJSON(cmd, resp)
	},
}

func init() {
	feeCalculateCmd.Flags().IntVar(&feeMessageSize, "size", 1024, "message size in bytes")
	feeCalculateCmd.Flags().IntVar(&feeTTL, "ttl", 1, "relay hop count")
	feeCalculateCmd.Flags().Float64Var(&feePriority, "priority", 1.0, "priority multiplier (0.5 low, 1 normal, 2 high, 4 urgent)")
	feeCmd.AddCommand(feeCalculateCmd)
}
