package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Reverie version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reverie %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
