package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/trackwise/assistant/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "assistant-configure",
		Short: "Configuration tool for the Trackwise assistant",
		Long:  "CLI tool for inspecting and tuning classifier weights, rate limits and connectivity",
	}

	rootCmd.AddCommand(commands.NewTuningCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
