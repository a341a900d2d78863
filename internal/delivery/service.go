package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/templatemail/internal/gmail"
	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/logging"
	"github.com/teemow/templatemail/internal/webhook"
)

// Channel selects how an email leaves the system.
type Channel string

const (
	ChannelGmail   Channel = instrumentation.ChannelGmail
	ChannelWebhook Channel = instrumentation.ChannelWebhook
)

// Channels lists the supported channels in display order.
var Channels = []Channel{ChannelWebhook, ChannelGmail}

var (
	// ErrMissingRecipient is returned when no recipient was given.
	ErrMissingRecipient = errors.New("Please enter a recipient email address.")

	// ErrMissingSubject is returned when the subject is blank.
	ErrMissingSubject = errors.New("Please enter an email subject.")

	// ErrMissingBody is returned when there is no template content to send.
	ErrMissingBody = errors.New("No HTML template selected or content is empty.")

	// ErrGmailNotAuthorized is returned for Gmail sends before authentication.
	ErrGmailNotAuthorized = errors.New("Please authenticate with Gmail first.")

	// ErrChannelUnavailable is returned when a channel has no backend configured.
	ErrChannelUnavailable = errors.New("delivery channel is not configured")
)

// ParseChannel converts a user supplied channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelGmail:
		return ChannelGmail, nil
	case ChannelWebhook, "":
		return ChannelWebhook, nil
	default:
		return "", fmt.Errorf("unknown delivery channel %q, must be one of: webhook, gmail", s)
	}
}

// Message is one email to deliver.
type Message struct {
	// To is one address or a comma separated list.
	To      string
	Subject string
	HTML    string

	// Template names the template the body came from. Used for logs only.
	Template string

	// Origin is the surface that triggered the send (ui, cli, mcp).
	Origin string
}

// Recipients returns the trimmed, non-empty addresses in To.
func (m Message) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(m.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// Validate checks the fields every channel requires.
func (m Message) Validate() error {
	if len(m.Recipients()) == 0 {
		return ErrMissingRecipient
	}
	if strings.TrimSpace(m.Subject) == "" {
		return ErrMissingSubject
	}
	if strings.TrimSpace(m.HTML) == "" {
		return ErrMissingBody
	}
	return nil
}

// Receipt describes a successful delivery.
type Receipt struct {
	Channel Channel
	// MessageID is the Gmail message ID; empty for the webhook channel.
	MessageID string
}

// WebhookSender posts a payload to the workflow endpoint.
type WebhookSender interface {
	Send(ctx context.Context, p webhook.Payload) error
}

// GmailSender sends one HTML email.
type GmailSender interface {
	SendHTML(ctx context.Context, msg *gmail.EmailMessage) (string, error)
}

// GmailSource hands out a sender for the authorized account.
// It returns ErrGmailNotAuthorized before the operator authenticated.
type GmailSource interface {
	Sender(ctx context.Context) (GmailSender, error)
}

// Service dispatches messages to their channel.
type Service struct {
	webhook WebhookSender
	gmail   GmailSource
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWebhook enables the webhook channel.
func WithWebhook(w WebhookSender) Option {
	return func(s *Service) { s.webhook = w }
}

// WithGmail enables the Gmail channel.
func WithGmail(g GmailSource) Option {
	return func(s *Service) { s.gmail = g }
}

// WithMetrics records delivery counts and latency.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditLogger records every attempt in the audit log.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(s *Service) { s.audit = al }
}

// WithLogger sets the operational logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a delivery service.
func NewService(opts ...Option) *Service {
	s := &Service{logger: logging.DefaultLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send validates msg and delivers it through channel. Nothing is retried.
func (s *Service) Send(ctx context.Context, channel Channel, msg Message) (*Receipt, error) {
	origin := msg.Origin
	if origin == "" {
		origin = "api"
	}
	action := instrumentation.NewAction(origin+".send").
		WithTemplate(msg.Template).
		WithDelivery(string(channel), msg.Recipients())

	receipt, err := s.send(ctx, channel, msg, action)
	s.audit.Log(ctx, action.Complete(err))
	return receipt, err
}

func (s *Service) send(ctx context.Context, channel Channel, msg Message, action *instrumentation.Action) (*Receipt, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	recipients := msg.Recipients()
	ctx, span := instrumentation.StartDeliverySpan(ctx, string(channel), len(recipients))
	defer span.End()
	action.WithSpanContext(ctx)

	start := time.Now()
	var messageID string
	var err error
	switch channel {
	case ChannelWebhook:
		err = s.sendWebhook(ctx, msg)
	case ChannelGmail:
		messageID, err = s.sendGmail(ctx, msg, recipients)
	default:
		err = fmt.Errorf("unknown delivery channel %q", channel)
	}
	s.metrics.RecordDelivery(ctx, string(channel), statusOf(err), time.Since(start))

	if err != nil {
		instrumentation.SetSpanError(span, err)
		s.logger.Warn("email delivery failed",
			logging.KeyChannel, string(channel),
			logging.KeyTemplate, msg.Template,
			logging.KeyError, err.Error())
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	s.logger.Info("email sent",
		logging.KeyChannel, string(channel),
		logging.KeyTemplate, msg.Template,
		"recipient_domain", instrumentation.RecipientDomain(recipients[0]),
		"recipient_count", len(recipients))
	return &Receipt{Channel: channel, MessageID: messageID}, nil
}

func (s *Service) sendWebhook(ctx context.Context, msg Message) error {
	if s.webhook == nil {
		return fmt.Errorf("webhook: %w", ErrChannelUnavailable)
	}
	// The workflow receives the recipient field exactly as entered.
	return s.webhook.Send(ctx, webhook.Payload{
		To:      strings.TrimSpace(msg.To),
		Subject: msg.Subject,
		Body:    msg.HTML,
	})
}

func (s *Service) sendGmail(ctx context.Context, msg Message, recipients []string) (string, error) {
	if s.gmail == nil {
		return "", fmt.Errorf("gmail: %w", ErrChannelUnavailable)
	}
	sender, err := s.gmail.Sender(ctx)
	if err != nil {
		return "", err
	}
	return sender.SendHTML(ctx, &gmail.EmailMessage{
		To:      recipients,
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
}

func statusOf(err error) string {
	if err != nil {
		return instrumentation.StatusError
	}
	return instrumentation.StatusSuccess
}
