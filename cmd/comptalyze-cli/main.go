package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "comptalyze",
		Short:         "Comptalyze - URSSAF simulator and billing maintenance",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(incomeTaxCmd())
	rootCmd.AddCommand(plansCmd())
	rootCmd.AddCommand(billingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
