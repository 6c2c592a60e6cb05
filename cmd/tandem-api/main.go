package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tandem-api",
	Short: "Tandem API - Collaborative workspace backend",
	Long:  `The Tandem workspace API: role-based access control, audit logging, optimistic concurrency, and realtime updates.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
