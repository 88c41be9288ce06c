// Package main is the entry point for the tbridge command
package main

import (
	"os"

	"github.com/ticketbridge/ticketbridge/cmd/tbridge/app"
	"github.com/ticketbridge/ticketbridge/pkg/logger"
)

func main() {
	// Initialize the logger system
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
