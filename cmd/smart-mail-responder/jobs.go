package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"smart-mail-responder/internal/display"
	"smart-mail-responder/internal/models"
	"smart-mail-responder/internal/worker"
)

var (
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List reply jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		jobs, err := store.Queue.List(cmd.Context(), models.JobStatus(jobsStatus), jobsLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), jobs)
		}
		display.JobTable(cmd.OutOrStdout(), jobs, time.Now())
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show reply job counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Queue.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), stats)
		}
		display.Stats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <job-id>",
	Short: "Give a failed job a fresh attempt budget",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		job, err := worker.Requeue(cmd.Context(), store.Queue, store.Repo, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), job)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued job %s for message %s\n", job.ID, job.MessageID)
		return nil
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (pending, in_flight, done, failed)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "Maximum number of jobs to list")

	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(requeueCmd)
}
