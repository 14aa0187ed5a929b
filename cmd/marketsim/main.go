// Command marketsim runs the monthly housing-market simulation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketsim",
		Short: "Monthly housing-market clearing simulation",
		Long: `marketsim advances a population of households through monthly market
cycles: role activation, matching, negotiation, settlement and price
feedback. State is kept in a SQLite database so runs can be resumed.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default from config)")

	rootCmd.AddCommand(
		newRunCmd(),
		newInspectCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
