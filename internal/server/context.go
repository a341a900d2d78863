package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/templatemail/internal/config"
	"github.com/teemow/templatemail/internal/delivery"
	"github.com/teemow/templatemail/internal/gemini"
	"github.com/teemow/templatemail/internal/google"
	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/logging"
	"github.com/teemow/templatemail/internal/rewrite"
	"github.com/teemow/templatemail/internal/templates"
	"github.com/teemow/templatemail/internal/webhook"
)

// GmailSource is a delivery.GmailSource whose authorization can be queried
// and whose cached client can be dropped after a new consent.
type GmailSource interface {
	delivery.GmailSource
	Authorized() bool
	Reset()
}

// ServerContext holds the dependencies shared by the web UI and the MCP tools.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	config        *config.Config
	store         *templates.Store
	rewriter      *rewrite.Rewriter
	delivery      *delivery.Service
	gmail         GmailSource
	authenticator *google.Authenticator
	authErr       error
	consentPrompt func(authURL string)

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// Option customizes a ServerContext. Options override the dependencies
// NewServerContext would otherwise build from the configuration.
type Option func(*options)

type options struct {
	generator   rewrite.Generator
	webhook     delivery.WebhookSender
	gmail       GmailSource
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	store       *templates.Store
	prompt      func(authURL string)
}

// WithGenerator replaces the Gemini client.
func WithGenerator(g rewrite.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithWebhookSender replaces the webhook client.
func WithWebhookSender(w delivery.WebhookSender) Option {
	return func(o *options) { o.webhook = w }
}

// WithGmailSource replaces the token backed Gmail source.
func WithGmailSource(g GmailSource) Option {
	return func(o *options) { o.gmail = g }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(o *options) { o.auditLogger = al }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStore replaces the template store, typically to pin its clock.
func WithStore(s *templates.Store) Option {
	return func(o *options) { o.store = s }
}

// WithConsentPrompt sets how the Gmail consent URL is shown when
// AuthorizeGmail is called without its own prompt. By default the URL is
// logged at warn level.
func WithConsentPrompt(fn func(authURL string)) Option {
	return func(o *options) { o.prompt = fn }
}

// NewServerContext wires every component from cfg.
//
// Missing optional configuration never fails construction: without a Gemini
// key rewrites report the missing key, and without a credentials file the
// Gmail channel reports the setup instructions.
func NewServerContext(ctx context.Context, cfg *config.Config, opts ...Option) (*ServerContext, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.store == nil {
		o.store = templates.NewStore(cfg.TemplatesDir)
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		config:      cfg,
		store:       o.store,
		metrics:     o.metrics,
		auditLogger: o.auditLogger,
		logger:      o.logger,
	}
	sc.consentPrompt = o.prompt
	if sc.consentPrompt == nil {
		sc.consentPrompt = func(authURL string) {
			sc.logger.Warn("Gmail consent required, open this URL in a browser to continue",
				slog.String("url", authURL))
		}
	}

	generator := o.generator
	if generator == nil {
		client, err := gemini.NewClient(shutdownCtx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			o.logger.Warn("AI rewrites unavailable", logging.Err(err))
			generator = gemini.Unavailable{Err: err}
		} else {
			generator = client
		}
	}

	sc.initGmail(o.gmail)

	webhookSender := o.webhook
	if webhookSender == nil {
		webhookSender = webhook.NewClient(cfg.WebhookURL, cfg.WebhookTimeout)
	}

	adapter := logging.NewSlogAdapter(o.logger)
	sc.rewriter = rewrite.NewRewriter(generator, sc.store,
		rewrite.WithLogger(adapter),
		rewrite.WithMetrics(sc.metrics))
	sc.delivery = delivery.NewService(
		delivery.WithWebhook(webhookSender),
		delivery.WithGmail(sc.gmail),
		delivery.WithMetrics(sc.metrics),
		delivery.WithAuditLogger(sc.auditLogger),
		delivery.WithLogger(adapter))

	return sc, nil
}

func (sc *ServerContext) initGmail(override GmailSource) {
	tokenStore := google.NewTokenStore(sc.config.TokenFile)

	oauthConfig, err := google.LoadConfig(sc.config.CredentialsFile, sc.config.OAuthRedirectURL)
	if err != nil {
		sc.authErr = err
		if !errors.Is(err, google.ErrCredentialsMissing) {
			sc.logger.Warn("Gmail credentials unusable", logging.Err(err))
		}
	} else {
		sc.authenticator = google.NewAuthenticator(oauthConfig, tokenStore, sc.config.AlwaysReauthorize)
	}

	switch {
	case override != nil:
		sc.gmail = override
	case sc.authenticator != nil:
		sc.gmail = delivery.NewTokenGmailSource(google.NewFileTokenProvider(sc.authenticator, tokenStore))
	default:
		sc.gmail = delivery.NewTokenGmailSource(nil)
	}
}

// Context returns the server context. It is cancelled by Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration.
func (sc *ServerContext) Config() *config.Config {
	return sc.config
}

// Store returns the template store.
func (sc *ServerContext) Store() *templates.Store {
	return sc.store
}

// Rewriter returns the rewrite pipeline.
func (sc *ServerContext) Rewriter() *rewrite.Rewriter {
	return sc.rewriter
}

// Delivery returns the delivery service.
func (sc *ServerContext) Delivery() *delivery.Service {
	return sc.delivery
}

// Authenticator returns the Gmail authenticator, or the error explaining why
// none could be created (usually google.ErrCredentialsMissing).
func (sc *ServerContext) Authenticator() (*google.Authenticator, error) {
	if sc.authenticator == nil {
		if sc.authErr == nil {
			return nil, google.ErrCredentialsMissing
		}
		return nil, sc.authErr
	}
	return sc.authenticator, nil
}

// GmailAuthorized reports whether Gmail sends can proceed without a consent.
func (sc *ServerContext) GmailAuthorized() bool {
	return sc.gmail.Authorized()
}

// GmailAuthorizationChanged drops the cached Gmail client so the next send
// uses the newly saved token.
func (sc *ServerContext) GmailAuthorizationChanged() {
	sc.gmail.Reset()
}

// AuthorizeGmail runs the loopback consent flow, blocking until the callback
// arrives or ctx ends, and makes the new token visible to the delivery
// service. show receives the consent URL; nil uses the configured prompt.
func (sc *ServerContext) AuthorizeGmail(ctx context.Context, show func(authURL string)) error {
	auth, err := sc.Authenticator()
	if err != nil {
		return err
	}
	if show == nil {
		show = sc.consentPrompt
	}

	if _, err := auth.AuthorizeLoopback(ctx, show); err != nil {
		sc.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return err
	}

	sc.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	sc.GmailAuthorizationChanged()
	return nil
}

// Metrics returns the metrics recorder. It may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// AuditLogger returns the audit logger. It may be nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
