package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sapj",
	Short: "Sales invoice service with stock-aware atomic updates",
	Long: `sapj owns the sales invoice tables of an inventory system.

Updating an invoice replaces all of its lines and patches its header in one
transaction, restoring stock for the removed lines and deducting it for the
new ones.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to the YAML config file (defaults and SAPJ_* environment variables apply without one)")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
