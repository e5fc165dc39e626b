package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reverie",
	Short: "Reverie is a branching-dialogue roleplay chat backend",
	Long: `Reverie runs AI roleplay conversations through a staged workflow
pipeline and persists every turn as a node in a branching dialogue tree.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML config file")
}
