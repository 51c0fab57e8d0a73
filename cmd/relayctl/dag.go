package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var dagCmd = &cobra.Command{
	Use:   "dag",
	Short: "Inspect the DAG store",
}

var dagStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show DAG totals and tip count",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var stats any
		if err := getJSON("/dag/stats", &stats); err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

var dagListTipsCmd = &cobra.Command{
	Use:   "list_tips",
	Short: "List current DAG tip ids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var tips []string
		if err := getJSON("/dag/tips", &tips); err != nil {
			return err
		}
		return printJSON(cmd, tips)
	},
}

var dagGetCmd = &cobra.Command{
	Use:   "get [tx-id-hex]",
	Short: "Fetch a stored transaction by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tx any
		if err := getJSON("/dag/tx/"+args[0], &tx); err != nil {
			return err
		}
		return printJSON(cmd, tx)
	},
}

func init() {
	dagCmd.AddCommand(dagStatsCmd, dagListTipsCmd, dagGetCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
