package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/templatemail/internal/delivery"
	"github.com/teemow/templatemail/internal/logging"
)

func newSendCmd() *cobra.Command {
	var (
		to      []string
		subject string
		via     string
	)

	cmd := &cobra.Command{
		Use:   "send <name>",
		Short: "Send a template as an HTML email",
		Long: `Send a template through the workflow webhook (default) or Gmail.

The webhook channel posts {to, subject, body} to WEBHOOK_URL. The gmail
channel sends a multipart message from the authorized account; when Gmail is
not authorized yet the consent flow is started first.`,
		Example: `  templatemail send welcome.html --to jane@example.com
  templatemail send welcome.html --to jane@example.com --via gmail --subject "Welcome!"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, args[0], to, subject, via)
		},
	}

	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipient email address(es), comma-separated or repeated")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Email subject (default: 'Email from <name>')")
	cmd.Flags().StringVar(&via, "via", string(delivery.ChannelWebhook), "Delivery channel: webhook or gmail")

	return cmd
}

// joinRecipients normalizes --to values into the comma separated form the
// delivery service and the webhook expect.
func joinRecipients(to []string) string {
	parts := make([]string, 0, len(to))
	for _, addr := range to {
		if addr = strings.TrimSpace(addr); addr != "" {
			parts = append(parts, addr)
		}
	}
	return strings.Join(parts, ", ")
}

func runSend(cmd *cobra.Command, name string, to []string, subject, via string) error {
	channel, err := delivery.ParseChannel(via)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	html, err := a.sc.Store().Read(name)
	if err != nil {
		return fmt.Errorf("error reading file %s: %w", name, err)
	}
	if subject == "" {
		subject = "Email from " + name
	}

	logger := logging.WithTemplate(logging.WithOperation(a.logger, "cli.send"), name)
	logger.Debug("sending template", logging.Channel(string(channel)))

	if channel == delivery.ChannelGmail && !a.sc.GmailAuthorized() {
		if err := authorizeGmail(cmd, a); err != nil {
			return err
		}
	}

	receipt, err := a.sc.Delivery().Send(cmd.Context(), channel, delivery.Message{
		To:       joinRecipients(to),
		Subject:  subject,
		HTML:     html,
		Template: name,
		Origin:   "cli",
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if receipt.Channel == delivery.ChannelGmail {
		fmt.Fprintf(out, "Email sent successfully! Message ID: %s\n", receipt.MessageID)
	} else {
		fmt.Fprintln(out, "Email successfully sent via n8n workflow!")
	}
	return nil
}
