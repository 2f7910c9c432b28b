package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// @title Kindrid API
// @version 0.1.0
// @description Consent-aware photo sharing for schools: upload, analyze, collect guardian consent, mask and publish.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kindrid",
		Short:         "Kindrid photo consent server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newStartCmd(), newTokenCmd())
	return root
}
