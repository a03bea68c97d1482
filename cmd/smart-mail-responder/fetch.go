package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"smart-mail-responder/internal/app"
	"smart-mail-responder/internal/fetcher"
	"smart-mail-responder/internal/mailbox"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one fetch cycle and enqueue reply jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		store, err := app.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		box, err := mailbox.New(cmd.Context(), cfg.Mailbox)
		if err != nil {
			return err
		}
		defer box.Close()

		result, err := fetcher.New(box, store.Repo, store.Queue, nil).RunCycle(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Listed %d, enqueued %d, skipped %d, duplicates %d\n",
			result.Listed, result.Enqueued, result.Skipped, result.Duplicates)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
