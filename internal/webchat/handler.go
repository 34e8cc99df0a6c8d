package webchat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	httpmiddleware "github.com/wolfman30/kb-chat-portal/internal/http/middleware"
	"github.com/wolfman30/kb-chat-portal/internal/render"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
)

// SessionCookie carries the browser's chat session id.
const SessionCookie = "kbchat_session"

const maxMessageBytes = 16 << 10

// Handler serves the chat page and its JSON and WebSocket endpoints.
type Handler struct {
	service  *conversation.Service
	sessions *conversation.SessionRegistry
	html     *render.HTMLRenderer
	title    string
	subtitle string
	logger   *logging.Logger

	limiter       *httpmiddleware.RateLimiter
	onRateLimited func(*http.Request)
}

// Options holds the page text shown above the transcript and the limiter
// applied to every message arriving over a WebSocket.
type Options struct {
	Title    string
	Subtitle string

	// RateLimiter is charged once per socket message. Nil disables limiting.
	RateLimiter   *httpmiddleware.RateLimiter
	OnRateLimited func(*http.Request)
}

// TurnPayload is a recorded turn with its bot text already split for display.
type TurnPayload struct {
	conversation.Turn
	Segments []render.Segment `json:"segments"`
}

// ChatResponse is returned by the JSON message endpoint.
type ChatResponse struct {
	SessionID string                  `json:"session_id"`
	Turn      conversation.Turn       `json:"turn"`
	Segments  []render.Segment        `json:"segments"`
	Citations []conversation.Citation `json:"citations,omitempty"`
}

// HistoryResponse is returned by the history endpoint.
type HistoryResponse struct {
	SessionID            string        `json:"session_id"`
	ContinuationTokenSet bool          `json:"continuation_token_set"`
	Turns                []TurnPayload `json:"turns"`
}

// NewHandler creates a web chat handler.
func NewHandler(service *conversation.Service, sessions *conversation.SessionRegistry, opts Options, logger *logging.Logger) *Handler {
	if service == nil || sessions == nil {
		panic("webchat: service and session registry are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service:  service,
		sessions: sessions,
		html:     render.NewHTMLRenderer(),
		title:    opts.Title,
		subtitle: opts.Subtitle,
		logger:   logger,

		limiter:       opts.RateLimiter,
		onRateLimited: opts.OnRateLimited,
	}
}

// HandlePage renders the transcript and the message box.
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionID(w, r, "")
	view := pageView{Title: h.title, Subtitle: h.subtitle}
	if sess, ok := h.sessions.Lookup(sessionID); ok {
		sess.Do(func(state *conversation.State) {
			for _, turn := range state.Turns() {
				botHTML, err := h.html.Render(h.service.Segments(turn.BotText))
				if err != nil {
					h.logger.Warn("webchat: render failed", "error", err)
					botHTML = h.html.RenderText(render.Lexer{}, turn.BotText)
				}
				view.Turns = append(view.Turns, turnView{
					UserText: turn.UserText,
					BotHTML:  botHTML,
					Failed:   turn.Failed,
				})
			}
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, view); err != nil {
		h.logger.Error("webchat: page template failed", "error", err)
	}
}

// HandleSubmit processes the message box form and redirects back to the page,
// which leaves the box empty. Blank input is ignored.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sessionID := h.sessionID(w, r, "")
	text := r.PostFormValue("message")
	if strings.TrimSpace(text) != "" {
		if _, err := h.runTurn(r, sessionID, text); err != nil {
			h.logger.Warn("webchat: turn rejected", "error", err, "session_id", sessionID)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMessage is the JSON endpoint for one turn.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	sessionID := h.sessionID(w, r, req.SessionID)
	result, err := h.runTurn(r, sessionID, req.Text)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, conversation.ErrEmptyMessage) {
			status = http.StatusBadRequest
		}
		writeJSONError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		SessionID: sessionID,
		Turn:      result.Turn,
		Segments:  result.Segments,
		Citations: result.Citations,
	})
}

// HandleHistory returns the turns of the caller's session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			sessionID = c.Value
		}
	}
	resp := HistoryResponse{SessionID: sessionID, Turns: []TurnPayload{}}
	if sessionID == "" {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	if sess, ok := h.sessions.Lookup(sessionID); ok {
		sess.Do(func(state *conversation.State) {
			resp.ContinuationTokenSet = state.HasContinuationToken()
			resp.Turns = h.turnPayloads(state)
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runTurn(r *http.Request, sessionID, text string) (conversation.TurnResult, error) {
	start := time.Now()
	var (
		result conversation.TurnResult
		err    error
	)
	h.sessions.Get(sessionID).Do(func(state *conversation.State) {
		result, err = h.service.ProcessTurn(r.Context(), state, text)
	})
	if err == nil {
		h.logger.Debug("webchat: turn processed",
			"session_id", sessionID,
			"failed", result.Turn.Failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return result, err
}

func (h *Handler) turnPayloads(state *conversation.State) []TurnPayload {
	turns := state.Turns()
	out := make([]TurnPayload, 0, len(turns))
	for _, t := range turns {
		out = append(out, TurnPayload{Turn: t, Segments: h.service.Segments(t.BotText)})
	}
	return out
}

// sessionID resolves the session from an explicit id, then the cookie, and
// otherwise starts a new one. The cookie is (re)issued when it does not match.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request, explicit string) string {
	id := strings.TrimSpace(explicit)
	cookie, err := r.Cookie(SessionCookie)
	if id == "" && err == nil && validSessionID(cookie.Value) {
		return cookie.Value
	}
	if id == "" || !validSessionID(id) {
		id = conversation.NewSessionID()
	}
	if err != nil || cookie.Value != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return id
}

func validSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
