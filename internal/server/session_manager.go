package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/logging"
)

const (
	// sessionCookieName is the cookie carrying the session ID.
	sessionCookieName = "templatemail_session"
	sessionIDKey      = "id"

	// DefaultSessionTimeout expires idle UI sessions.
	DefaultSessionTimeout = 24 * time.Hour

	sessionCleanupInterval = 10 * time.Minute
)

// SessionState is a snapshot of one UI session.
type SessionState struct {
	TemplateName string `json:"templateName"`
	// TemplateContent is the file content rewrites start from.
	TemplateContent string `json:"-"`
	// DisplayedContent is what the preview shows and sends deliver. It
	// diverges from TemplateContent after an accepted rewrite.
	DisplayedContent string `json:"displayedContent"`
	Instruction      string `json:"instruction"`
	// LastSaved is the file name of the most recent accepted rewrite.
	LastSaved string `json:"lastSaved,omitempty"`
}

// DefaultSubject is the subject the send form proposes for the template.
func (s SessionState) DefaultSubject() string {
	if s.TemplateName == "" {
		return ""
	}
	return "Email from " + s.TemplateName
}

// Session is the state of one browser session. Methods are safe for
// concurrent use; requests from one browser may overlap.
type Session struct {
	ID string

	mu         sync.Mutex
	state      SessionState
	lastAccess time.Time
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Select loads a template into the session. The preview shows the file
// content and any pending instruction is kept.
func (s *Session) Select(name, content string) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.TemplateName = name
	s.state.TemplateContent = content
	s.state.DisplayedContent = content
	s.state.LastSaved = ""
	return s.state
}

// Clear forgets the selected template, for example after a read failure.
func (s *Session) Clear(name string) SessionState {
	return s.Select(name, "")
}

// SetInstruction records the pending rewrite instruction.
func (s *Session) SetInstruction(instruction string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Instruction = instruction
}

// ApplyRewrite shows html in the preview and clears the instruction.
// savedAs is empty when saving the edited copy failed.
func (s *Session) ApplyRewrite(html, savedAs string) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DisplayedContent = html
	s.state.Instruction = ""
	s.state.LastSaved = savedAs
	return s.state
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccess)
}

// SessionManager maps browser cookies to Sessions and expires idle ones.
type SessionManager struct {
	cookies        *sessions.CookieStore
	sessions       map[string]*Session
	mu             sync.RWMutex
	cleanupTicker  *time.Ticker
	cleanupDone    chan struct{}
	stopOnce       sync.Once
	sessionTimeout time.Duration
	logger         *slog.Logger
	metrics        *instrumentation.Metrics
	now            func() time.Time
}

// NewSessionManager creates a session manager signing cookies with secret.
func NewSessionManager(secret string, timeout time.Duration, logger *slog.Logger, metrics *instrumentation.Metrics) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	cookies := sessions.NewCookieStore([]byte(secret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(timeout.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	m := &SessionManager{
		cookies:        cookies,
		sessions:       make(map[string]*Session),
		cleanupTicker:  time.NewTicker(sessionCleanupInterval),
		cleanupDone:    make(chan struct{}),
		sessionTimeout: timeout,
		logger:         logger,
		metrics:        metrics,
		now:            time.Now,
	}

	go m.cleanupLoop()

	return m
}

// Get returns the session for the request, creating one and setting the
// cookie when the request carries none or an unknown one.
func (m *SessionManager) Get(w http.ResponseWriter, r *http.Request) (*Session, error) {
	// A cookie that fails verification (for example after a secret change)
	// still yields a usable new session.
	cookie, _ := m.cookies.Get(r, sessionCookieName)

	if id, ok := cookie.Values[sessionIDKey].(string); ok {
		if s := m.lookup(id); s != nil {
			s.touch(m.now())
			return s, nil
		}
	}

	s := m.create(r.Context())
	cookie.Values[sessionIDKey] = s.ID
	if err := cookie.Save(r, w); err != nil {
		m.remove(r.Context(), s.ID)
		return nil, err
	}
	return s, nil
}

func (m *SessionManager) lookup(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

func (m *SessionManager) create(ctx context.Context) *Session {
	s := &Session{ID: uuid.NewString(), lastAccess: m.now()}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.IncrementActiveSessions(ctx)
	m.logger.Debug("session created", logging.Session(s.ID))
	return s
}

func (m *SessionManager) remove(ctx context.Context, id string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.metrics.DecrementActiveSessions(ctx)
	}
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ExpireIdle removes sessions idle longer than the timeout and returns how
// many were removed.
func (m *SessionManager) ExpireIdle() int {
	now := m.now()

	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleSince(now) > m.sessionTimeout {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for range expired {
		m.metrics.DecrementActiveSessions(context.Background())
	}
	return len(expired)
}

func (m *SessionManager) cleanupLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			if n := m.ExpireIdle(); n > 0 {
				m.logger.Info("Cleaned up expired sessions", "count", n)
			}
		case <-m.cleanupDone:
			return
		}
	}
}

// Stop stops the session cleanup goroutine.
func (m *SessionManager) Stop() {
	m.stopOnce.Do(func() {
		m.cleanupTicker.Stop()
		close(m.cleanupDone)
	})
}
