// Package config loads templatemail settings from the environment.
//
// A .env file in the working directory is read first when present, so the
// Gemini API key and webhook URL can live next to the templates folder.
// Variables already set in the process environment win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultTemplatesDir is the folder scanned for *.html templates.
	DefaultTemplatesDir = "Templates"

	// DefaultModel is the Gemini model used for rewrites.
	DefaultModel = "gemini-1.5-flash"

	// DefaultWebhookURL is the workflow endpoint that relays template emails.
	DefaultWebhookURL = "https://kantom-luke12.app.n8n.cloud/webhook/send-html-email"

	// DefaultWebhookTimeout bounds a single webhook POST.
	DefaultWebhookTimeout = 10 * time.Second

	// DefaultHTTPAddr is where the web UI listens.
	DefaultHTTPAddr = "localhost:8080"

	// DefaultMetricsAddr is where the Prometheus endpoint listens when enabled.
	DefaultMetricsAddr = ":9090"

	// DefaultSessionSecret signs the UI session cookie when SESSION_SECRET is unset.
	DefaultSessionSecret = "templatemail-local-session-secret"
)

// Config holds every runtime setting of the application.
type Config struct {
	// GeminiAPIKey authenticates rewrite requests. Required only for rewrites.
	GeminiAPIKey string
	GeminiModel  string

	TemplatesDir string

	// Gmail OAuth settings
	CredentialsFile   string
	TokenFile         string
	OAuthRedirectURL  string
	AlwaysReauthorize bool

	WebhookURL     string
	WebhookTimeout time.Duration

	HTTPAddr      string
	SessionSecret string

	MetricsEnabled bool
	MetricsAddr    string
}

// Load reads the optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	timeout, err := getEnvDurationOrDefault("WEBHOOK_TIMEOUT", DefaultWebhookTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnvOrDefault("GEMINI_MODEL", DefaultModel),
		TemplatesDir:      getEnvOrDefault("TEMPLATES_DIR", DefaultTemplatesDir),
		CredentialsFile:   getEnvOrDefault("GMAIL_CREDENTIALS_FILE", "credentials.json"),
		TokenFile:         getEnvOrDefault("GMAIL_TOKEN_FILE", "token.json"),
		OAuthRedirectURL:  getEnvOrDefault("GMAIL_REDIRECT_URL", "http://localhost:8080/auth/callback"),
		AlwaysReauthorize: getEnvBoolOrDefault("GMAIL_ALWAYS_REAUTHORIZE", true),
		WebhookURL:        getEnvOrDefault("WEBHOOK_URL", DefaultWebhookURL),
		WebhookTimeout:    timeout,
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", DefaultHTTPAddr),
		SessionSecret:     getEnvOrDefault("SESSION_SECRET", DefaultSessionSecret),
		MetricsEnabled:    getEnvBoolOrDefault("METRICS_ENABLED", false),
		MetricsAddr:       getEnvOrDefault("METRICS_ADDR", DefaultMetricsAddr),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the shape of the configuration. The Gemini key is not
// checked here; a missing key is reported when a rewrite is attempted.
func (c *Config) Validate() error {
	if c.TemplatesDir == "" {
		return fmt.Errorf("templates directory must not be empty")
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive, got %s", c.WebhookTimeout)
	}
	if c.WebhookURL != "" {
		if err := validateHTTPURL(c.WebhookURL); err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}
	}
	if err := validateHTTPURL(c.OAuthRedirectURL); err != nil {
		return fmt.Errorf("invalid OAuth redirect URL: %w", err)
	}
	return nil
}

// HasGeminiKey reports whether AI rewrites can be attempted.
func (c *Config) HasGeminiKey() bool {
	return c.GeminiAPIKey != ""
}

// HasCredentials reports whether the Gmail OAuth client file exists.
func (c *Config) HasCredentials() bool {
	_, err := os.Stat(c.CredentialsFile)
	return err == nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is missing in %q", raw)
	}
	return nil
}

// getEnvOrDefault returns the value of an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the boolean value of an environment variable or a default value.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
