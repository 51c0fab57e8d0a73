package main

import "github.com/spf13/cobra"

var powCmd = &cobra.Command{
	Use:   "pow",
	Short: "Inspect the proof-of-work engine",
}

var powStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show current difficulty and target time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var stats any
		if err := getJSON("/pow/stats", &stats); err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

func init() {
	powCmd.AddCommand(powStatsCmd)
}
