// Command relayctl is an inspection CLI that talks to a running relaynode
// over its HTTP API (spec §6).
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Inspect a running relay-token ledger node",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:8745", "relaynode API base URL")
	rootCmd.AddCommand(dagCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(feeCmd)
	rootCmd.AddCommand(powCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
