package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/templatemail/internal/config"
	"github.com/teemow/templatemail/internal/delivery"
	"github.com/teemow/templatemail/internal/gmail"
	"github.com/teemow/templatemail/internal/rewrite"
	"github.com/teemow/templatemail/internal/templates"
	"github.com/teemow/templatemail/internal/webhook"
)

type fakeGenerator struct {
	mu       sync.Mutex
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

type fakeWebhook struct {
	mu       sync.Mutex
	err      error
	payloads []webhook.Payload
}

func (f *fakeWebhook) Send(_ context.Context, p webhook.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	return f.err
}

type fakeGmailSource struct {
	authorized bool
	sent       []*gmail.EmailMessage
	resets     int
}

func (f *fakeGmailSource) Sender(context.Context) (delivery.GmailSender, error) {
	if !f.authorized {
		return nil, delivery.ErrGmailNotAuthorized
	}
	return f, nil
}

func (f *fakeGmailSource) SendHTML(_ context.Context, msg *gmail.EmailMessage) (string, error) {
	f.sent = append(f.sent, msg)
	return "msg-123", nil
}

func (f *fakeGmailSource) Authorized() bool { return f.authorized }
func (f *fakeGmailSource) Reset()           { f.resets++ }

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type testEnv struct {
	dir       string
	cfg       *config.Config
	generator *fakeGenerator
	webhook   *fakeWebhook
	gmail     *fakeGmailSource
	server    *httptest.Server
	client    *http.Client
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "Templates")
	require.NoError(t, os.Mkdir(dir, 0o755))

	cfg := &config.Config{
		GeminiAPIKey:      "test-key",
		GeminiModel:       "test-model",
		TemplatesDir:      dir,
		CredentialsFile:   filepath.Join(root, "credentials.json"),
		TokenFile:         filepath.Join(root, "token.json"),
		OAuthRedirectURL:  "http://localhost:8080/auth/callback",
		AlwaysReauthorize: true,
		WebhookURL:        "http://workflow.invalid/hook",
		WebhookTimeout:    10 * time.Second,
		HTTPAddr:          "localhost:0",
		SessionSecret:     "test-secret",
	}
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		dir:       dir,
		cfg:       cfg,
		generator: &fakeGenerator{},
		webhook:   &fakeWebhook{},
		gmail:     &fakeGmailSource{},
	}

	sc, err := NewServerContext(context.Background(), cfg,
		WithGenerator(env.generator),
		WithWebhookSender(env.webhook),
		WithGmailSource(env.gmail),
		WithStore(templates.NewStore(cfg.TemplatesDir).WithClock(func() time.Time { return fixedNow })),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	ws, err := NewWebServer(sc, WebServerConfig{Addr: cfg.HTTPAddr, SessionSecret: cfg.SessionSecret})
	require.NoError(t, err)

	env.server = httptest.NewServer(ws.Handler())
	t.Cleanup(func() {
		env.server.Close()
		ws.Sessions().Stop()
		_ = sc.Shutdown()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return env
}

func (e *testEnv) writeTemplate(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, name), []byte(content), 0o644))
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestWebServer_IndexPage(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.client.Get(env.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "HTML Email Template Viewer")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestWebServer_ListTemplates(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "b.html", "<p>b</p>")
	env.writeTemplate(t, "a.html", "<p>a</p>")
	env.writeTemplate(t, "notes.txt", "ignored")

	status, body := env.do(t, http.MethodGet, "/api/templates", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"a.html", "b.html"}, body["templates"])
	assert.Equal(t, true, body["dirExists"])
	assert.Nil(t, body["notices"])
}

func TestWebServer_ListTemplatesNotices(t *testing.T) {
	tests := []struct {
		name       string
		removeDir  bool
		wantExists bool
		wantLast   string
	}{
		{
			name:       "empty directory",
			wantExists: true,
			wantLast:   "Please add some .html files to the '%s' folder and refresh the page.",
		},
		{
			name:      "missing directory",
			removeDir: true,
			wantLast:  "The '%s' folder does not exist.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			if tt.removeDir {
				require.NoError(t, os.Remove(env.dir))
			}

			status, body := env.do(t, http.MethodGet, "/api/templates", nil)

			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, []any{}, body["templates"])
			assert.Equal(t, tt.wantExists, body["dirExists"])
			notices, ok := body["notices"].([]any)
			require.True(t, ok)
			assert.Equal(t, "No HTML files found in the '"+env.dir+"' folder.", notices[0])
			assert.Equal(t, fmt.Sprintf(tt.wantLast, env.dir), notices[len(notices)-1])
		})
	}
}

func TestWebServer_GetTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")

	status, body := env.do(t, http.MethodGet, "/api/templates/welcome.html", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<p>Hello World</p>", body["content"])

	status, body = env.do(t, http.MethodGet, "/api/templates/missing.html", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"], "Error reading file missing.html")

	status, _ = env.do(t, http.MethodGet, "/api/templates/notes.txt", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebServer_SelectTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")

	status, body := env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "welcome.html", body["templateName"])
	assert.Equal(t, "<p>Hello World</p>", body["displayedContent"])
	assert.Equal(t, "Email from welcome.html", body["defaultSubject"])
	assert.NotContains(t, body, "TemplateContent")

	// The session survives across requests through the cookie.
	status, body = env.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "welcome.html", body["templateName"])
}

func TestWebServer_RewriteEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
	env.generator.response = "```html\n<p>Hello Sam</p>\n```"

	status, _ := env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": "change greeting to Hello Sam"})
	require.Equal(t, http.StatusOK, status, body)

	wantName := "welcome_ai_edited_20240102_030405.html"
	assert.Equal(t, wantName, body["savedAs"])
	assert.Equal(t, "Saved AI-modified template as: "+wantName, body["message"])

	session, ok := body["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "<p>Hello Sam</p>", session["displayedContent"])
	assert.Equal(t, "", session["instruction"])

	saved, err := os.ReadFile(filepath.Join(env.dir, wantName))
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello Sam</p>", string(saved))

	original, err := os.ReadFile(filepath.Join(env.dir, "welcome.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello World</p>", string(original))

	require.Len(t, env.generator.prompts, 1)
	assert.Contains(t, env.generator.prompts[0], "<p>Hello World</p>")
	assert.Contains(t, env.generator.prompts[0], "change greeting to Hello Sam")
}

func TestWebServer_RewriteStartsFromFileContent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
	env.generator.response = "<p>Hello Sam</p>"

	env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})
	status, _ := env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": "first"})
	require.Equal(t, http.StatusOK, status)
	status, _ = env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": "second"})
	require.Equal(t, http.StatusOK, status)

	require.Len(t, env.generator.prompts, 2)
	assert.Contains(t, env.generator.prompts[1], "<p>Hello World</p>")
	assert.NotContains(t, env.generator.prompts[1], "<p>Hello Sam</p>")
}

func TestWebServer_RewriteRejectsInvalidOutput(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
	env.generator.response = "I cannot do that"

	env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})
	status, body := env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": "do something"})

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "AI response did not seem to be valid HTML. Got: I cannot do that...", body["error"])
	assert.Equal(t, (&rewrite.InvalidOutputError{Diagnostic: "I cannot do that"}).Error(), body["error"])

	entries, err := os.ReadDir(env.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, session := env.do(t, http.MethodGet, "/api/session", nil)
	assert.Equal(t, "<p>Hello World</p>", session["displayedContent"])
	assert.Equal(t, "do something", session["instruction"])
}

func TestWebServer_RewriteGenerationFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
	env.generator.err = errors.New("quota exceeded")

	env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})
	status, body := env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": "do something"})

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "Error calling Gemini API:")
	assert.Contains(t, body["error"], "quota exceeded")
}

func TestWebServer_RewritePreconditions(t *testing.T) {
	tests := []struct {
		name        string
		noKey       bool
		selectFirst bool
		instruction string
		wantStatus  int
		wantError   string
	}{
		{
			name:        "empty instruction is reported first",
			noKey:       true,
			instruction: "  ",
			wantStatus:  http.StatusBadRequest,
			wantError:   msgMissingInstruction,
		},
		{
			name:        "missing key is reported before missing template",
			noKey:       true,
			instruction: "make it blue",
			wantStatus:  http.StatusPreconditionFailed,
			wantError:   msgMissingGeminiKey,
		},
		{
			name:        "no template selected",
			instruction: "make it blue",
			wantStatus:  http.StatusBadRequest,
			wantError:   msgNoTemplate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) {
				if tt.noKey {
					c.GeminiAPIKey = ""
				}
			})

			status, body := env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": tt.instruction})

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, body["error"])
			assert.Empty(t, env.generator.prompts)
		})
	}
}

func TestWebServer_SendViaWebhook(t *testing.T) {
	env := newTestEnv(t, nil)
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
	env.generator.response = "<p>Hello Sam</p>"

	env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})
	env.do(t, http.MethodPost, "/api/rewrite", map[string]string{"instruction": "change greeting"})

	status, body := env.do(t, http.MethodPost, "/api/send", map[string]string{
		"channel": "webhook",
		"to":      "jane@example.com",
		"subject": "Email from welcome.html",
	})

	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, msgWebhookSent, body["message"])
	require.Len(t, env.webhook.payloads, 1)
	assert.Equal(t, webhook.Payload{
		To:      "jane@example.com",
		Subject: "Email from welcome.html",
		Body:    "<p>Hello Sam</p>",
	}, env.webhook.payloads[0])
}

func TestWebServer_SendErrors(t *testing.T) {
	tests := []struct {
		name       string
		webhookErr error
		request    map[string]string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing recipient",
			request:    map[string]string{"channel": "webhook", "subject": "S"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Please enter a recipient email address.",
		},
		{
			name:       "missing subject",
			request:    map[string]string{"channel": "webhook", "to": "jane@example.com"},
			wantStatus: http.StatusBadRequest,
			wantError:  "Please enter an email subject.",
		},
		{
			name:       "unknown channel",
			request:    map[string]string{"channel": "pigeon", "to": "jane@example.com", "subject": "S"},
			wantStatus: http.StatusBadRequest,
			wantError:  `unknown delivery channel "pigeon", must be one of: webhook, gmail`,
		},
		{
			name:       "webhook status",
			webhookErr: &webhook.StatusError{Code: 500, Body: "workflow crashed"},
			request:    map[string]string{"channel": "webhook", "to": "jane@example.com", "subject": "S"},
			wantStatus: http.StatusBadGateway,
			wantError:  "Failed to send email. n8n responded with status code 500: workflow crashed",
		},
		{
			name:       "webhook unreachable",
			webhookErr: errors.New("connection refused"),
			request:    map[string]string{"channel": "webhook", "to": "jane@example.com", "subject": "S"},
			wantStatus: http.StatusBadGateway,
			wantError:  "Error sending request to n8n webhook: connection refused",
		},
		{
			name:       "gmail not authorized",
			request:    map[string]string{"channel": "gmail", "to": "jane@example.com", "subject": "S"},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Please authenticate with Gmail first.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
			env.webhook.err = tt.webhookErr
			env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})

			status, body := env.do(t, http.MethodPost, "/api/send", tt.request)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestWebServer_SendViaGmail(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gmail.authorized = true
	env.writeTemplate(t, "welcome.html", "<p>Hello World</p>")
	env.do(t, http.MethodPost, "/api/session/select", map[string]string{"name": "welcome.html"})

	status, body := env.do(t, http.MethodPost, "/api/send", map[string]string{
		"channel": "gmail",
		"to":      "jane@example.com, joe@example.com",
		"subject": "Hi",
	})

	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "msg-123", body["messageId"])
	require.Len(t, env.gmail.sent, 1)
	assert.Equal(t, []string{"jane@example.com", "joe@example.com"}, env.gmail.sent[0].To)
	assert.Equal(t, "<p>Hello World</p>", env.gmail.sent[0].HTML)
}

func TestWebServer_StatusWarnings(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.GeminiAPIKey = "" })

	status, body := env.do(t, http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["geminiConfigured"])
	assert.Equal(t, false, body["credentialsFound"])
	assert.Equal(t, false, body["gmailAuthorized"])
	assert.Equal(t, []any{"webhook", "gmail"}, body["channels"])
	warnings, ok := body["warnings"].([]any)
	require.True(t, ok)
	require.Len(t, warnings, 2)
	assert.Equal(t, msgMissingGeminiKey, warnings[0])
	assert.Contains(t, warnings[1], "Gmail API setup required")
}

func TestWebServer_AuthWithoutCredentials(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/auth/gmail", nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
	assert.Contains(t, body["error"], env.cfg.CredentialsFile)

	status, _ = env.do(t, http.MethodGet, "/auth/callback?state=x&code=y", nil)
	assert.Equal(t, http.StatusPreconditionFailed, status)
}

const testCredentials = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func TestWebServer_AuthFlow(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	var credentialsFile string
	env := newTestEnv(t, func(c *config.Config) {
		credentialsFile = c.CredentialsFile
		creds := bytes.ReplaceAll([]byte(testCredentials),
			[]byte("https://oauth2.googleapis.com/token"), []byte(tokenServer.URL))
		require.NoError(t, os.WriteFile(credentialsFile, creds, 0o600))
	})

	resp, err := env.client.Get(env.server.URL + "/auth/gmail")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := resp.Location()
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "http://localhost:8080/auth/callback", location.Query().Get("redirect_uri"))

	status, body := env.do(t, http.MethodGet, "/auth/callback?state=wrong&code=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Troubleshooting")

	// The mismatched callback leaves the pending consent usable.
	resp, err = env.client.Get(env.server.URL + "/auth/callback?state=" + state + "&code=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/?gmail=authorized", resp.Header.Get("Location"))

	_, err = os.Stat(env.cfg.TokenFile)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, env.gmail.resets, 2)
}
