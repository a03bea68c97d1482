package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"smart-mail-responder/internal/app"
	"smart-mail-responder/internal/composer"
	"smart-mail-responder/internal/display"
	"smart-mail-responder/internal/models"
)

var classifySender string

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Classify a message body and preview the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cls, comp, err := app.NewResponder(cfg)
		if err != nil {
			return err
		}

		msg := models.RawMessage{Sender: classifySender, Body: strings.Join(args, " ")}
		category, err := cls.Classify(cmd.Context(), msg.Body)
		if err != nil {
			return err
		}
		reply, err := comp.Compose(category, composer.ContextFor(msg))
		if err != nil {
			return err
		}

		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), map[string]string{"category": string(category), "reply": reply})
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n\n", display.Bold.Render("Category:"), display.CategoryLabel(category))
		fmt.Fprintln(out, reply)
		return nil
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifySender, "sender", "", "Sender address used to fill the template")
	rootCmd.AddCommand(classifyCmd)
}
