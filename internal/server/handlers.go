package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/teemow/templatemail/internal/delivery"
	"github.com/teemow/templatemail/internal/google"
	"github.com/teemow/templatemail/internal/instrumentation"
	"github.com/teemow/templatemail/internal/logging"
	"github.com/teemow/templatemail/internal/rewrite"
	"github.com/teemow/templatemail/internal/templates"
	"github.com/teemow/templatemail/internal/webhook"
)

// User facing messages shown by the UI.
const (
	msgMissingInstruction = "Please enter a description of the changes you want."
	msgMissingGeminiKey   = "Gemini API key not set in environment variables. Please set GEMINI_API_KEY in the .env file."
	msgNoTemplate         = "No HTML template selected or content is empty. Please select a template to edit."
	msgWebhookSent        = "Email successfully sent via n8n workflow!"
	msgGmailAuthorized    = "Gmail authentication successful! You can now send emails."
)

type statusResponse struct {
	TemplatesDir      string   `json:"templatesDir"`
	DirExists         bool     `json:"dirExists"`
	GeminiConfigured  bool     `json:"geminiConfigured"`
	GeminiModel       string   `json:"geminiModel"`
	CredentialsFound  bool     `json:"credentialsFound"`
	GmailAuthorized   bool     `json:"gmailAuthorized"`
	AlwaysReauthorize bool     `json:"alwaysReauthorize"`
	Channels          []string `json:"channels"`
	Warnings          []string `json:"warnings,omitempty"`
}

func (s *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.sc.Config()
	resp := statusResponse{
		TemplatesDir:      s.sc.Store().Dir(),
		DirExists:         s.sc.Store().Exists(),
		GeminiConfigured:  cfg.HasGeminiKey(),
		GeminiModel:       cfg.GeminiModel,
		CredentialsFound:  cfg.HasCredentials(),
		GmailAuthorized:   s.sc.GmailAuthorized(),
		AlwaysReauthorize: cfg.AlwaysReauthorize,
	}
	for _, ch := range delivery.Channels {
		resp.Channels = append(resp.Channels, string(ch))
	}
	if !resp.GeminiConfigured {
		resp.Warnings = append(resp.Warnings, msgMissingGeminiKey)
	}
	if !resp.CredentialsFound {
		resp.Warnings = append(resp.Warnings, google.SetupInstructions(cfg.CredentialsFile))
	}
	respondJSON(w, http.StatusOK, resp)
}

type templatesResponse struct {
	Templates []string `json:"templates"`
	DirExists bool     `json:"dirExists"`
	Notices   []string `json:"notices,omitempty"`
}

func (s *WebServer) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	store := s.sc.Store()
	names, err := store.List()
	if err != nil {
		s.sc.Logger().Error("failed to list templates", logging.Err(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Error listing templates: %v", err))
		return
	}

	resp := templatesResponse{Templates: names, DirExists: store.Exists()}
	if resp.Templates == nil {
		resp.Templates = []string{}
	}
	if len(names) == 0 {
		dir := store.Dir()
		resp.Notices = append(resp.Notices,
			fmt.Sprintf("No HTML files found in the '%s' folder.", dir),
			fmt.Sprintf("Please add some .html files to the '%s' folder and refresh the page.", dir))
		if !resp.DirExists {
			resp.Notices = append(resp.Notices, fmt.Sprintf("The '%s' folder does not exist.", dir))
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

type templateResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func (s *WebServer) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	content, err := s.sc.Store().Read(name)
	if err != nil {
		respondTemplateError(w, name, err)
		return
	}
	respondJSON(w, http.StatusOK, templateResponse{Name: name, Content: content})
}

func respondTemplateError(w http.ResponseWriter, name string, err error) {
	msg := fmt.Sprintf("Error reading file %s: %v", name, err)
	switch {
	case errors.Is(err, templates.ErrInvalidName):
		respondError(w, http.StatusBadRequest, msg)
	case errors.Is(err, templates.ErrNotFound):
		respondError(w, http.StatusNotFound, msg)
	default:
		respondError(w, http.StatusInternalServerError, msg)
	}
}

type sessionResponse struct {
	SessionState
	DefaultSubject string `json:"defaultSubject"`
}

func newSessionResponse(state SessionState) sessionResponse {
	return sessionResponse{SessionState: state, DefaultSubject: state.DefaultSubject()}
}

func (s *WebServer) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := s.sessions.Get(w, r)
	if err != nil {
		s.sc.Logger().Error("failed to create session", logging.Err(err))
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return nil, false
	}
	return sess, true
}

func (s *WebServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess.Snapshot()))
}

type selectRequest struct {
	Name string `json:"name"`
}

func (s *WebServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	content, err := s.sc.Store().Read(req.Name)
	if err != nil {
		sess.Clear(req.Name)
		s.sc.Logger().Warn("failed to read template",
			logging.Template(req.Name), logging.Err(err))
		respondTemplateError(w, req.Name, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(sess.Select(req.Name, content)))
}

type rewriteRequest struct {
	Instruction string `json:"instruction"`
}

type rewriteResponse struct {
	Session sessionResponse `json:"session"`
	SavedAs string          `json:"savedAs,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *WebServer) handleRewrite(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req rewriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess.SetInstruction(req.Instruction)
	state := sess.Snapshot()

	// Checked in the order the operator fixes them.
	switch {
	case strings.TrimSpace(req.Instruction) == "":
		respondError(w, http.StatusBadRequest, msgMissingInstruction)
		return
	case !s.sc.Config().HasGeminiKey():
		respondError(w, http.StatusPreconditionFailed, msgMissingGeminiKey)
		return
	case state.TemplateName == "" || state.TemplateContent == "":
		respondError(w, http.StatusBadRequest, msgNoTemplate)
		return
	}

	result, err := s.sc.Rewriter().Rewrite(r.Context(), rewrite.Request{
		TemplateName: state.TemplateName,
		Original:     state.TemplateContent,
		Instruction:  req.Instruction,
	})

	action := instrumentation.NewAction("ui.rewrite").
		WithTemplate(state.TemplateName).
		WithSpanContext(r.Context())
	s.sc.AuditLogger().Log(r.Context(), action.Complete(err))

	var invalid *rewrite.InvalidOutputError
	switch {
	case err == nil:
		state = sess.ApplyRewrite(result.HTML, result.SavedAs)
		respondJSON(w, http.StatusOK, rewriteResponse{
			Session: newSessionResponse(state),
			SavedAs: result.SavedAs,
			Message: "Saved AI-modified template as: " + result.SavedAs,
		})
	case errors.Is(err, rewrite.ErrSaveFailed) && result != nil:
		// The new HTML is still shown even though no copy was written.
		state = sess.ApplyRewrite(result.HTML, "")
		respondJSON(w, http.StatusOK, rewriteResponse{
			Session: newSessionResponse(state),
			Error:   fmt.Sprintf("Error saving the modified HTML copy: %v", err),
		})
	case errors.As(err, &invalid):
		respondError(w, http.StatusUnprocessableEntity, invalid.Error())
	case errors.Is(err, rewrite.ErrEmptyInstruction):
		respondError(w, http.StatusBadRequest, msgMissingInstruction)
	case errors.Is(err, rewrite.ErrEmptyTemplate):
		respondError(w, http.StatusBadRequest, msgNoTemplate)
	default:
		respondError(w, http.StatusBadGateway, fmt.Sprintf("Error calling Gemini API: %v", err))
	}
}

type sendRequest struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject"`
}

type sendResponse struct {
	Channel   string `json:"channel"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message"`
}

func (s *WebServer) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	channel, err := delivery.ParseChannel(req.Channel)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	state := sess.Snapshot()
	receipt, err := s.sc.Delivery().Send(r.Context(), channel, delivery.Message{
		To:       req.To,
		Subject:  req.Subject,
		HTML:     state.DisplayedContent,
		Template: state.TemplateName,
		Origin:   "ui",
	})
	if err != nil {
		status, msg := sendErrorResponse(channel, err)
		respondError(w, status, msg)
		return
	}

	resp := sendResponse{Channel: string(receipt.Channel), MessageID: receipt.MessageID}
	if receipt.Channel == delivery.ChannelGmail {
		resp.Message = "Email sent successfully! Message ID: " + receipt.MessageID
	} else {
		resp.Message = msgWebhookSent
	}
	respondJSON(w, http.StatusOK, resp)
}

func sendErrorResponse(channel delivery.Channel, err error) (int, string) {
	var statusErr *webhook.StatusError
	switch {
	case errors.Is(err, delivery.ErrMissingRecipient),
		errors.Is(err, delivery.ErrMissingSubject),
		errors.Is(err, delivery.ErrMissingBody):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, delivery.ErrGmailNotAuthorized):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, delivery.ErrChannelUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &statusErr):
		return http.StatusBadGateway, fmt.Sprintf(
			"Failed to send email. n8n responded with status code %d: %s", statusErr.Code, statusErr.Body)
	case channel == delivery.ChannelWebhook:
		return http.StatusBadGateway, fmt.Sprintf("Error sending request to n8n webhook: %v", err)
	default:
		return http.StatusBadGateway, fmt.Sprintf("Error sending email: %v", err)
	}
}

func (s *WebServer) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	auth, err := s.sc.Authenticator()
	if err != nil {
		if errors.Is(err, google.ErrCredentialsMissing) {
			respondError(w, http.StatusPreconditionFailed, google.SetupInstructions(s.sc.Config().CredentialsFile))
			return
		}
		respondError(w, http.StatusInternalServerError,
			fmt.Sprintf("Unexpected error during Gmail authentication: %v", err))
		return
	}

	authURL, err := auth.Begin()
	if err != nil {
		s.sc.Logger().Error("failed to start Gmail authorization", logging.Err(err))
		respondError(w, http.StatusInternalServerError,
			fmt.Sprintf("Unexpected error during Gmail authentication: %v", err))
		return
	}
	// A discarded token must not be served from the cached client.
	s.sc.GmailAuthorizationChanged()
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *WebServer) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	auth, err := s.sc.Authenticator()
	if err != nil {
		respondError(w, http.StatusPreconditionFailed, google.SetupInstructions(s.sc.Config().CredentialsFile))
		return
	}

	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		s.sc.Metrics().RecordOAuthAuth(r.Context(), instrumentation.OAuthResultFailure)
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Gmail authorization was denied: %s\n\n%s", denied, google.Troubleshooting))
		return
	}

	token, err := auth.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		s.sc.Metrics().RecordOAuthAuth(r.Context(), instrumentation.OAuthResultFailure)
		s.sc.Logger().Warn("Gmail authorization failed", logging.Err(err))
		status := http.StatusBadGateway
		if errors.Is(err, google.ErrStateMismatch) {
			status = http.StatusBadRequest
		}
		respondError(w, status, fmt.Sprintf("Gmail authentication failed: %v\n\n%s", err, google.Troubleshooting))
		return
	}

	s.sc.Metrics().RecordOAuthAuth(r.Context(), instrumentation.OAuthResultSuccess)
	s.sc.GmailAuthorizationChanged()
	s.sc.Logger().Info(msgGmailAuthorized, slog.String("access_token", logging.SanitizeToken(token.AccessToken)))
	http.Redirect(w, r, "/?gmail=authorized", http.StatusFound)
}
