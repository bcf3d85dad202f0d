// Package main is the entry point for the chatrelay CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatrelay/pkg/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "chatrelay - forum post notifications for chat platforms",
	Long: `chatrelay relays new forum posts to chat platforms like Slack,
Discord and Telegram, routed by per-channel subscription rules on
categories, tags and groups.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetFullVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
