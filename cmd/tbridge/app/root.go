// Package app provides the entry point for the tbridge command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ticketbridge/ticketbridge/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "tbridge",
	DisableAutoGenTag: true,
	Short:             "Delegated-authentication bridge to a ticket authority",
	Long: `tbridge holds a long-lived app credential, keeps a signed app ticket current
against the remote authority, and serves the /authenticate flow that turns
vouchers, external assertions and stored tickets into validated sessions.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the tbridge CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Fatalf("Failed to bind debug flag: %v", err)
	}

	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
