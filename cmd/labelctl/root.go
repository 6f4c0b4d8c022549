package main

import (
	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "labelctl",
	Short: "CLI for the labeling server",
	Long: `labelctl drives the asset labeling server from the command line.

It lists the asset roster and tags, starts the batch recognition and
auto-label workflows, and reports workflow status.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Labeling server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(assetsCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(autolabelCmd)
}
