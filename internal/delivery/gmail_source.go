package delivery

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"

	"github.com/teemow/templatemail/internal/gmail"
	"github.com/teemow/templatemail/internal/google"
)

// TokenGmailSource builds Gmail clients from a token provider.
// The client is cached until Reset is called, mirroring how an
// authenticated Gmail service lives for the rest of the session.
type TokenGmailSource struct {
	provider google.TokenProvider
	opts     []option.ClientOption

	mu     sync.Mutex
	client *gmail.Client
}

// NewTokenGmailSource creates a source backed by provider.
// opts are passed to every Gmail client, which lets tests point the
// client at a local server.
func NewTokenGmailSource(provider google.TokenProvider, opts ...option.ClientOption) *TokenGmailSource {
	return &TokenGmailSource{provider: provider, opts: opts}
}

// Sender returns the cached client, creating it on first use.
func (s *TokenGmailSource) Sender(ctx context.Context) (GmailSender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	if s.provider == nil || !s.provider.HasToken() {
		return nil, ErrGmailNotAuthorized
	}

	ts, err := s.provider.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGmailNotAuthorized, err)
	}
	// The client outlives the request that created it.
	client, err := gmail.NewClient(context.WithoutCancel(ctx), ts, s.opts...)
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

// Authorized reports whether a client exists or a token is available.
func (s *TokenGmailSource) Authorized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil || (s.provider != nil && s.provider.HasToken())
}

// Reset drops the cached client so the next send picks up a new token.
func (s *TokenGmailSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
}
