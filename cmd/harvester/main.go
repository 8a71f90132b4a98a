// Package main provides the entry point for the shop harvester CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Shop catalog, pricing, and inventory harvester",
	Long:  "Harvester fetches catalog, pricing, and inventory data for a list of product numbers from the dealer shop API and produces a deduplicated CSV export.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
