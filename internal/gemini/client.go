// Package gemini generates text with the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/rewrite"
)

const (
	// Temperature keeps edits close to the source template.
	Temperature float32 = 0.2

	// MaxOutputTokens caps the size of one generated template.
	MaxOutputTokens int32 = 8192
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY not found in environment. Please add it to your .env file")

// contentGenerator is the subset of genai.Models used by the client.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client sends single-turn prompts to one Gemini model.
type Client struct {
	models contentGenerator
	model  string
}

// NewClient creates a Gemini client for model.
func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{models: client.Models, model: model}, nil
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Generate sends prompt with the fixed sampling settings and returns the raw
// response text. Every failure is reported as rewrite.ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	ctx, span := instrumentation.StartGenerationSpan(ctx, c.model)
	defer span.End()

	resp, err := c.models.GenerateContent(ctx, c.model, contents, generationConfig())
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return "", fmt.Errorf("%w: %w", rewrite.ErrGenerationFailed, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%w: empty response from %s", rewrite.ErrGenerationFailed, c.model)
		instrumentation.SetSpanError(span, err)
		return "", err
	}
	instrumentation.SetSpanSuccess(span)
	return text, nil
}

func generationConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(Temperature),
		MaxOutputTokens: MaxOutputTokens,
	}
}

// Unavailable is a Generator that always fails with the configuration error
// that prevented a real client from being built.
type Unavailable struct {
	Err error
}

// Generate implements rewrite.Generator.
func (u Unavailable) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %w", rewrite.ErrGenerationFailed, u.Err)
}
