package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Operator tooling for the CRM API",
	Long:  "crmctl provisions store indexes and the activity schema, and mints identity tokens for local development. Configuration comes from the same environment variables as the API.",

	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
