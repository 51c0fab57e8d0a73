package main

import "github.com/spf13/cobra"

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect wallet balances and history",
}

var walletSummaryCmd = &cobra.Command{
	Use:   "summary [pub-hex]",
	Short: "Show a wallet's balance and recent history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary any
		if err := getJSON("/wallet/"+args[0]+"/summary", &summary); err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

func init() {
	walletCmd.AddCommand(walletSummaryCmd)
}
