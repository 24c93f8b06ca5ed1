package main

import (
	"fmt"
	"os"

	"github.com/AshAI-Sys/Ash-AI-sub011/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "routingd",
	Short:        "Production routing and dependency scheduling engine",
	SilenceUsage: true,
}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
