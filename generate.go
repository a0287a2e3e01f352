package main

import (
	"fmt"
	"os"

	"academia-calsync/logger"

	"github.com/spf13/cobra"
)

type credentialFlags struct {
	username string
	password string
}

func (c *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.username, "username", os.Getenv("ACADEMIA_USERNAME"), "portal username (ACADEMIA_USERNAME)")
	cmd.Flags().StringVar(&c.password, "password", os.Getenv("ACADEMIA_PASSWORD"), "portal password (ACADEMIA_PASSWORD)")
}

func (c *credentialFlags) validate() error {
	if err := requireFlag("username", c.username); err != nil {
		return err
	}
	return requireFlag("password", c.password)
}

func generateCmd() *cobra.Command {
	var creds credentialFlags
	var out string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Log in once and write the calendar feed to a file or stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.validate(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ics, err := a.service.Generate(cmd.Context(), creds.username, creds.password)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), ics)
				return err
			}
			if err := os.WriteFile(out, []byte(ics), 0o644); err != nil {
				return fmt.Errorf("error writing %s: %w", out, err)
			}
			logger.Log.Infof("Calendar written to %s", out)
			return nil
		},
	}
	creds.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout when empty")
	return cmd
}

func validateCmd() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that the portal accepts a username and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := creds.validate(); err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.ValidateCredentials(cmd.Context(), creds.username, creds.password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials are valid.")
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}
