// Package main is the entry point for the casfad server.
package main

import (
	"os"

	"github.com/casfa/casfa/cmd/casfad/app"
	"github.com/casfa/casfa/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
