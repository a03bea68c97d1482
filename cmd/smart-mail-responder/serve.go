package main

import (
	"github.com/spf13/cobra"

	"smart-mail-responder/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler, the worker pool and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(configPath)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
