package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
)

var redirectURL string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Obtain a Gmail refresh token for mailbox.gmail.refresh_token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		g := cfg.Mailbox.Gmail
		if g.ClientID == "" || g.ClientSecret == "" {
			return fmt.Errorf("set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET (or mailbox.gmail.client_id/client_secret) first")
		}

		oauthCfg := &oauth2.Config{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope, gmail.GmailSendScope},
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Open this link in your browser:\n\n  %s\n\n", oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
		fmt.Fprint(out, "Paste the 'code' parameter from the redirect URL: ")

		code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && strings.TrimSpace(code) == "" {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}

		tok, err := oauthCfg.Exchange(cmd.Context(), strings.TrimSpace(code))
		if err != nil {
			return fmt.Errorf("unable to exchange authorization code: %w", err)
		}
		if tok.RefreshToken == "" {
			return fmt.Errorf("no refresh token returned; revoke the app's access and try again")
		}

		fmt.Fprintf(out, "\nAdd the refresh token to your environment:\n\n  export GMAIL_REFRESH_TOKEN=%q\n", tok.RefreshToken)
		return nil
	},
}

func init() {
	authCmd.Flags().StringVar(&redirectURL, "redirect-url", "http://localhost:8080/callback", "OAuth redirect URL registered for the client")
	rootCmd.AddCommand(authCmd)
}
