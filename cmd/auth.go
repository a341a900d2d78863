package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/templatemail/internal/google"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail sending",
		Long: `Run the Gmail OAuth consent flow and save the token.

The consent URL is printed; after approval Google redirects to
GMAIL_REDIRECT_URL, which this command serves until the callback arrives.
With GMAIL_ALWAYS_REAUTHORIZE=true (the default) any saved token is
discarded first so consent is always asked again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cmd, appOptions{})
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := authorizeGmail(cmd, a); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Gmail authentication successful! You can now send emails.")
			return nil
		},
	}
}

// authorizeGmail runs the loopback consent flow, printing the URL to stderr.
func authorizeGmail(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	err := a.sc.AuthorizeGmail(ctx, func(authURL string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL in your browser to authorize Gmail:\n\n  %s\n\n", authURL)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, google.ErrCredentialsMissing):
		return fmt.Errorf("%w\n\n%s", err, google.SetupInstructions(a.cfg.CredentialsFile))
	default:
		return fmt.Errorf("Gmail authentication failed: %w\n\n%s", err, google.Troubleshooting)
	}
}
