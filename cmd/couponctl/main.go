package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "couponctl",
		Short:        "Operate the coupon issuance service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (defaults to $COUPON_CONFIG or ./config.yaml)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(poolCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
