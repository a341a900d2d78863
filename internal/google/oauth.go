package google

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrCredentialsMissing is returned when credentials.json cannot be found.
var ErrCredentialsMissing = errors.New("Gmail credentials file not found")

// ErrStateMismatch is returned when a callback does not belong to the
// pending authorization.
var ErrStateMismatch = errors.New("OAuth state mismatch")

// LoadConfig builds the OAuth client configuration from a Desktop-app
// credentials file. redirectURL overrides the redirect in the file.
func LoadConfig(credentialsFile, redirectURL string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsMissing, credentialsFile)
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	conf, err := google.ConfigFromJSON(data, GmailScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if redirectURL != "" {
		conf.RedirectURL = redirectURL
	}
	return conf, nil
}

// Authenticator runs the authorization-code flow and owns the saved token.
type Authenticator struct {
	config            *oauth2.Config
	store             *TokenStore
	alwaysReauthorize bool

	mu           sync.Mutex
	pendingState string
	// completed is set once a consent finished in this process.
	completed bool
}

// NewAuthenticator creates an Authenticator. When alwaysReauthorize is set,
// every Begin discards the saved token so the user must consent again.
func NewAuthenticator(config *oauth2.Config, store *TokenStore, alwaysReauthorize bool) *Authenticator {
	return &Authenticator{
		config:            config,
		store:             store,
		alwaysReauthorize: alwaysReauthorize,
	}
}

// AlwaysReauthorize reports the reauthorization policy.
func (a *Authenticator) AlwaysReauthorize() bool {
	return a.alwaysReauthorize
}

// Begin starts a new authorization and returns the consent URL the user
// must visit. Any previous pending authorization is abandoned.
func (a *Authenticator) Begin() (string, error) {
	if a.alwaysReauthorize {
		if err := a.store.Delete(); err != nil {
			return "", err
		}
	}

	state := uuid.NewString()

	a.mu.Lock()
	a.pendingState = state
	if a.alwaysReauthorize {
		a.completed = false
	}
	a.mu.Unlock()

	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Complete exchanges the authorization code from the callback and saves the
// resulting token.
func (a *Authenticator) Complete(ctx context.Context, state, code string) (*oauth2.Token, error) {
	// A callback with the wrong state leaves the pending consent intact.
	a.mu.Lock()
	if a.pendingState == "" || state != a.pendingState {
		a.mu.Unlock()
		return nil, ErrStateMismatch
	}
	a.pendingState = ""
	a.mu.Unlock()
	if code == "" {
		return nil, fmt.Errorf("authorization code is missing from the callback")
	}

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	if err := a.store.Save(token); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.completed = true
	a.mu.Unlock()
	return token, nil
}

// Authorized reports whether Gmail can be used without a new consent: either
// a consent completed in this process, or reuse is allowed and a token is saved.
func (a *Authenticator) Authorized() bool {
	a.mu.Lock()
	completed := a.completed
	a.mu.Unlock()
	if completed {
		return a.store.Exists()
	}
	return !a.alwaysReauthorize && a.store.Exists()
}

// Reusable returns a token source for the saved token when the policy allows
// reuse. It returns ErrNoToken when a fresh consent is required.
func (a *Authenticator) Reusable(ctx context.Context) (oauth2.TokenSource, error) {
	if a.alwaysReauthorize {
		return nil, ErrNoToken
	}
	return a.TokenSource(ctx)
}

// TokenSource returns a refreshing token source for the saved token.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	token, err := a.store.Load()
	if err != nil {
		return nil, err
	}
	return a.config.TokenSource(ctx, token), nil
}

// AuthorizeLoopback runs the whole flow for a terminal user: it prints or
// opens the consent URL through show, serves the redirect URL on its loopback
// address until the callback arrives, and saves the token.
func (a *Authenticator) AuthorizeLoopback(ctx context.Context, show func(authURL string)) (oauth2.TokenSource, error) {
	redirect, err := url.Parse(a.config.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s for the OAuth callback: %w", redirect.Host, err)
	}

	type callback struct {
		state, code, errParam string
	}
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		select {
		case results <- callback{state: q.Get("state"), code: q.Get("code"), errParam: q.Get("error")}:
		default:
		}
		_, _ = w.Write([]byte("Authentication finished. You can close this window."))
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(listener) }()
	defer func() { _ = srv.Close() }()

	authURL, err := a.Begin()
	if err != nil {
		return nil, err
	}
	show(authURL)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case cb := <-results:
		if cb.errParam != "" {
			return nil, fmt.Errorf("authorization denied: %s", cb.errParam)
		}
		token, err := a.Complete(ctx, cb.state, cb.code)
		if err != nil {
			return nil, err
		}
		return a.config.TokenSource(ctx, token), nil
	}
}

// SetupInstructions explains how to obtain credentials.json.
func SetupInstructions(credentialsFile string) string {
	return fmt.Sprintf(`Gmail API setup required:

1. Go to https://console.cloud.google.com/ and create or select a project.
2. Enable the Gmail API for the project.
3. Create OAuth 2.0 credentials of type "Desktop app".
4. Download the client configuration and save it as %s.
5. Add http://localhost:8080/auth/callback as an authorized redirect URI if your
   client type requires it.`, credentialsFile)
}

// Troubleshooting lists common causes of a failed authorization.
const Troubleshooting = `Troubleshooting:
- Make sure the credentials file is a valid OAuth client for a Desktop app.
- Make sure the Gmail API is enabled in your Google Cloud project.
- If the consent screen is in testing mode, add your account as a test user.
- Make sure nothing else is listening on the redirect port.`
