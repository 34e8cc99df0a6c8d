package webchat

import (
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	httpmiddleware "github.com/wolfman30/kb-chat-portal/internal/http/middleware"
	"github.com/wolfman30/kb-chat-portal/internal/render"
	"golang.org/x/net/websocket"
)

// InboundMessage is what the browser sends over the socket.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send back.
type OutboundMessage struct {
	Type      string                  `json:"type"` // "session", "history", "typing", "message", "pong", "error"
	SessionID string                  `json:"session_id,omitempty"`
	Text      string                  `json:"text,omitempty"`
	Failed    bool                    `json:"failed,omitempty"`
	Segments  []render.Segment        `json:"segments,omitempty"`
	Citations []conversation.Citation `json:"citations,omitempty"`
	Turns     []TurnPayload           `json:"turns,omitempty"`
	Timestamp string                  `json:"timestamp,omitempty"`
}

// HandleWebSocket upgrades to WebSocket and runs turns as messages arrive.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		if c, err := r.Cookie(SessionCookie); err == nil {
			sessionID = c.Value
		}
	}
	if !validSessionID(sessionID) {
		sessionID = conversation.NewSessionID()
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})

	if sess, ok := h.sessions.Lookup(sessionID); ok {
		var history []TurnPayload
		sess.Do(func(state *conversation.State) {
			history = h.turnPayloads(state)
		})
		if len(history) > 0 {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Turns: history})
		}
	}

	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}

		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		if !h.limiter.Allow(httpmiddleware.ClientKey(r)) {
			if h.onRateLimited != nil {
				h.onRateLimited(r)
			}
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: "rate limit exceeded"})
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})

		result, err := h.runTurn(r, sessionID, msg.Text)
		if err != nil {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "error", Text: err.Error()})
			continue
		}
		if err := websocket.JSON.Send(conn, OutboundMessage{
			Type:      "message",
			SessionID: sessionID,
			Text:      result.Turn.BotText,
			Failed:    result.Turn.Failed,
			Segments:  result.Segments,
			Citations: result.Citations,
			Timestamp: result.Turn.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			h.logger.Debug("webchat: reply not delivered", "session_id", sessionID, "error", err)
			return
		}
	}
}
