package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider is an interface for providing OAuth tokens for the Gmail API.
// This abstraction allows different token sources (file-based, in-memory for tests).
type TokenProvider interface {
	// TokenSource returns a token source for the authorized account
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)

	// HasToken checks if a token is available
	HasToken() bool
}

// FileTokenProvider provides tokens saved by an Authenticator.
type FileTokenProvider struct {
	auth  *Authenticator
	store *TokenStore
}

// NewFileTokenProvider creates a file-based token provider.
func NewFileTokenProvider(auth *Authenticator, store *TokenStore) *FileTokenProvider {
	return &FileTokenProvider{auth: auth, store: store}
}

// TokenSource returns a refreshing token source for the saved token.
func (p *FileTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, err := p.auth.TokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get token from file: %w", err)
	}
	return ts, nil
}

// HasToken reports whether the saved token may be used under the
// authenticator's reauthorization policy.
func (p *FileTokenProvider) HasToken() bool {
	if p.auth != nil {
		return p.auth.Authorized()
	}
	return p.store.Exists()
}

// StaticTokenProvider serves a fixed token source.
type StaticTokenProvider struct {
	Source oauth2.TokenSource
}

// TokenSource returns the fixed token source.
func (p StaticTokenProvider) TokenSource(context.Context) (oauth2.TokenSource, error) {
	if p.Source == nil {
		return nil, ErrNoToken
	}
	return p.Source, nil
}

// HasToken reports whether a source is set.
func (p StaticTokenProvider) HasToken() bool {
	return p.Source != nil
}
