package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	gomail "gopkg.in/gomail.v2"
)

// EmailMessage is one template email.
type EmailMessage struct {
	To      []string
	Cc      []string
	Subject string
	HTML    string
}

// Client wraps the Gmail Users service.
type Client struct {
	svc *gmail.UsersService
}

// NewClient creates a Gmail client authorized by ts.
func NewClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{svc: svc.Users}, nil
}

// NewClientWithService wraps an existing Gmail service.
func NewClientWithService(svc *gmail.Service) *Client {
	return &Client{svc: svc.Users}
}

// SendHTML sends msg from the authorized account and returns the Gmail
// message ID.
func (c *Client) SendHTML(ctx context.Context, msg *EmailMessage) (string, error) {
	raw, err := BuildMessage(msg)
	if err != nil {
		return "", err
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	sent, err := c.svc.Messages.Send("me", gmailMsg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}
	return sent.Id, nil
}

// BuildMessage renders msg as an RFC 2822 multipart/alternative message.
func BuildMessage(msg *EmailMessage) ([]byte, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if msg.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if msg.HTML == "" {
		return nil, fmt.Errorf("body is required")
	}

	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	m.SetHeader("To", msg.To...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", PlainText(msg.HTML))
	m.AddAlternative("text/html", msg.HTML)

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to build MIME message: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	textPolicy = bluemonday.StrictPolicy()

	blockTags  = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/h[1-6]|/li|/tr|/table)\s*/?>`)
	headBlocks = regexp.MustCompile(`(?is)<(style|script|title)[^>]*>.*?</(style|script|title)>`)
	blankLines = regexp.MustCompile(`\n[ \t]*\n(\s*\n)+`)
	spaceRuns  = regexp.MustCompile(`[ \t]+`)
)

// PlainText renders an HTML template as readable plain text for the
// text/plain alternative.
func PlainText(htmlBody string) string {
	text := headBlocks.ReplaceAllString(htmlBody, "")
	text = blockTags.ReplaceAllString(text, "$0\n")
	text = textPolicy.Sanitize(text)
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
