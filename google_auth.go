package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func googleAuthCmd() *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "google-auth",
		Short: "Authorize Google Calendar access; prints the consent URL, or stores the token for --code",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			google := a.googleAuthorizer()
			if google == nil {
				return fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are not set")
			}
			if code == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Go to the following link in your browser, then rerun with --code:\n%s\n", google.AuthURL(uuid.NewString()))
				return nil
			}
			if err := google.ExchangeAndSave(cmd.Context(), code); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to %s\n", cfg.GoogleTokenFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code returned by the consent page")
	return cmd
}
