package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	httpmiddleware "github.com/wolfman30/kb-chat-portal/internal/http/middleware"
	"github.com/wolfman30/kb-chat-portal/internal/observability/metrics"
	"github.com/wolfman30/kb-chat-portal/internal/webchat"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
	"golang.org/x/net/websocket"
)

type echoKnowledgeBase struct{}

func (echoKnowledgeBase) Query(_ context.Context, text, _ string) (conversation.Answer, error) {
	return conversation.Answer{Text: "echo: " + text, ContinuationToken: "tok"}, nil
}

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) (http.Handler, *metrics.ChatMetrics) {
	t.Helper()

	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	reg := prometheus.NewRegistry()
	m := metrics.NewChatMetrics(reg)
	sessions := conversation.NewSessionRegistry(time.Hour, m)
	svc := conversation.NewService(echoKnowledgeBase{}, logger, conversation.WithMetrics(m))

	cfg := &Config{
		Logger:             logger,
		Chat:               webchat.NewHandler(svc, sessions, webchat.Options{Title: "Router Test"}, logger),
		Sessions:           sessions,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://portal.example"},
		RateLimiter:        limiter,
		OnRateLimited:      func(*http.Request) { m.ObserveRejected("rate_limited") },
	}
	return New(cfg), m
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
	if resp["sessions"] != float64(0) {
		t.Errorf("expected 0 sessions, got %v", resp["sessions"])
	}
}

func TestRouterChatAPIEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"session_id":"s1","text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://portal.example")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://portal.example" {
		t.Fatalf("expected CORS header, got %q", got)
	}

	var resp webchat.ChatResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode chat response: %v", err)
	}
	if resp.Turn.BotText != "echo: hello" {
		t.Fatalf("unexpected bot text %q", resp.Turn.BotText)
	}

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(health.Body.String(), `"sessions":1`) {
		t.Fatalf("expected one active session, got %s", health.Body.String())
	}
}

func TestRouterPageAndFormSubmit(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	form := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("message=hi+there"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, form)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}

	page := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		page.AddCookie(c)
	}
	pr := httptest.NewRecorder()
	router.ServeHTTP(pr, page)
	if pr.Code != http.StatusOK {
		t.Fatalf("expected page status 200, got %d", pr.Code)
	}
	body := pr.Body.String()
	if !strings.Contains(body, "Router Test") || !strings.Contains(body, "echo: hi there") {
		t.Fatalf("expected title and reply on page, got %s", body)
	}
}

func TestRouterRateLimitsChatTurns(t *testing.T) {
	router, _ := newTestRouter(t, httpmiddleware.NewRateLimiter(0.001, 1))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"text":"hi"}`))
		req.RemoteAddr = "192.0.2.1:5000"
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send(); code != http.StatusOK {
		t.Fatalf("expected first turn to pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second turn to be limited, got %d", code)
	}

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	health.RemoteAddr = "192.0.2.1:5000"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, health)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected health to bypass the limiter, got %d", rr.Code)
	}

	mr := httptest.NewRecorder()
	router.ServeHTTP(mr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mr.Body.String(), `kbchat_conversation_rejected_messages_total{reason="rate_limited"} 1`) {
		t.Fatalf("expected rate limit rejection metric, got %s", mr.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leads/web", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRouterRateLimitsSocketMessages(t *testing.T) {
	logger := logging.NewWithWriter("error", &bytes.Buffer{})
	reg := prometheus.NewRegistry()
	m := metrics.NewChatMetrics(reg)
	sessions := conversation.NewSessionRegistry(time.Hour, m)
	svc := conversation.NewService(echoKnowledgeBase{}, logger, conversation.WithMetrics(m))
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	onLimited := func(*http.Request) { m.ObserveRejected("rate_limited") }

	router := New(&Config{
		Logger: logger,
		Chat: webchat.NewHandler(svc, sessions, webchat.Options{
			RateLimiter:   limiter,
			OnRateLimited: onLimited,
		}, logger),
		Sessions:       sessions,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RateLimiter:    limiter,
		OnRateLimited:  onLimited,
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}

	var out webchat.OutboundMessage
	if err := websocket.JSON.Receive(conn, &out); err != nil || out.Type != "session" {
		t.Fatalf("expected session greeting, got %+v (%v)", out, err)
	}

	const sent = 4
	for i := 0; i < sent; i++ {
		if err := websocket.JSON.Send(conn, webchat.InboundMessage{Type: "message", Text: "hi"}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	var types []string
	for len(types) < sent+1 {
		out = webchat.OutboundMessage{}
		if err := websocket.JSON.Receive(conn, &out); err != nil {
			t.Fatalf("receive: %v", err)
		}
		types = append(types, out.Type)
	}
	if got := strings.Join(types, ","); got != "typing,message,error,error,error" {
		t.Fatalf("unexpected socket replies %s", got)
	}

	mr := httptest.NewRecorder()
	router.ServeHTTP(mr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mr.Body.String()
	if !strings.Contains(body, `kbchat_conversation_turns_total{outcome="answered"} 1`) {
		t.Fatalf("expected exactly one answered turn, got %s", body)
	}
	if !strings.Contains(body, `kbchat_conversation_rejected_messages_total{reason="rate_limited"} 3`) {
		t.Fatalf("expected three rate limited messages, got %s", body)
	}
}
