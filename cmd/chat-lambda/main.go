package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/wolfman30/kb-chat-portal/cmd/mainconfig"
	appconfig "github.com/wolfman30/kb-chat-portal/internal/config"
	"github.com/wolfman30/kb-chat-portal/internal/conversation"
	"github.com/wolfman30/kb-chat-portal/internal/render"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
)

// chatRequest carries one user message. SessionID is the knowledge-base
// continuation token from the previous reply, if any.
type chatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Text      string                  `json:"text"`
	SessionID string                  `json:"session_id,omitempty"`
	Segments  []render.Segment        `json:"segments"`
	Citations []conversation.Citation `json:"citations,omitempty"`
	Failed    bool                    `json:"failed,omitempty"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		panic(err)
	}
	service := conversation.NewService(
		mainconfig.NewKnowledgeBaseClient(awsCfg, cfg),
		logger,
		mainconfig.ServiceOptions(cfg, nil)...,
	)

	lambda.Start(func(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		return handle(ctx, service, evt)
	})
}

func handle(ctx context.Context, service *conversation.Service, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return jsonResponse(http.StatusOK, map[string]string{"status": "ok"}), nil
	}
	if path != "/chat" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "invalid body"}), nil
	}
	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "invalid body"}), nil
	}

	state := conversation.NewStateWithToken(strings.TrimSpace(req.SessionID))
	result, err := service.ProcessTurn(ctx, state, req.Text)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		return jsonResponse(http.StatusBadRequest, map[string]string{"error": "text is required"}), nil
	}
	if err != nil {
		return jsonResponse(http.StatusInternalServerError, map[string]string{"error": "internal error"}), nil
	}

	return jsonResponse(http.StatusOK, chatResponse{
		Text:      result.Turn.BotText,
		SessionID: state.ContinuationToken(),
		Segments:  result.Segments,
		Citations: result.Citations,
		Failed:    result.Turn.Failed,
	}), nil
}

func jsonResponse(status int, v any) events.APIGatewayV2HTTPResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"content-type": "application/json"},
	}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	return base64.StdEncoding.DecodeString(evt.Body)
}
