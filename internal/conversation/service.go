package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/kb-chat-portal/internal/observability/metrics"
	"github.com/wolfman30/kb-chat-portal/internal/render"
	"github.com/wolfman30/kb-chat-portal/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultFallbackMessage is shown in place of an answer when the knowledge
// base call fails.
const DefaultFallbackMessage = "An error occurred while processing your request."

// TurnResult is what a UI needs to display one processed turn.
type TurnResult struct {
	Turn      Turn             `json:"turn"`
	Segments  []render.Segment `json:"segments"`
	Citations []Citation       `json:"citations,omitempty"`
}

// Service runs one chat turn against the knowledge base.
type Service struct {
	kb       KnowledgeBaseClient
	lexer    render.Lexer
	fallback string
	metrics  *metrics.ChatMetrics
	logger   *logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithFallbackMessage replaces DefaultFallbackMessage. Blank values are ignored.
func WithFallbackMessage(msg string) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(msg) != "" {
			s.fallback = msg
		}
	}
}

// WithLexer sets how answers are split into segments.
func WithLexer(lexer render.Lexer) ServiceOption {
	return func(s *Service) {
		s.lexer = lexer
	}
}

// WithMetrics records turn, latency, segment and rejection metrics on m.
func WithMetrics(m *metrics.ChatMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a turn service over kb. It panics when kb is nil.
func NewService(kb KnowledgeBaseClient, logger *logging.Logger, opts ...ServiceOption) *Service {
	if kb == nil {
		panic("conversation: knowledge base client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		kb:       kb,
		fallback: DefaultFallbackMessage,
		logger:   logger,
		tracer:   otel.Tracer("kbchat.internal.conversation"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FallbackMessage returns the text recorded for failed turns.
func (s *Service) FallbackMessage() string {
	return s.fallback
}

// Segments splits stored bot text the same way ProcessTurn does.
func (s *Service) Segments(text string) []render.Segment {
	return s.lexer.Split(text)
}

// ProcessTurn sends text to the knowledge base with the state's continuation
// token and records the turn. Blank text returns ErrEmptyMessage and leaves the
// state untouched. A failed remote call is not an error: the turn is recorded
// with the fallback message and the token is kept as it was.
func (s *Service) ProcessTurn(ctx context.Context, state *State, text string) (TurnResult, error) {
	if state == nil {
		return TurnResult{}, errors.New("conversation: state is required")
	}
	if strings.TrimSpace(text) == "" {
		s.metrics.ObserveRejected("empty")
		return TurnResult{}, ErrEmptyMessage
	}

	ctx, span := s.tracer.Start(ctx, "conversation.process_turn")
	defer span.End()
	span.SetAttributes(
		attribute.Int("conversation.turns", state.Len()),
		attribute.Bool("conversation.continued", state.HasContinuationToken()),
	)

	start := s.now()
	answer, err := s.kb.Query(ctx, text, state.ContinuationToken())
	status := remoteStatus(err)
	s.metrics.ObserveRemoteLatency(status, s.now().Sub(start).Seconds())

	if err != nil {
		span.RecordError(err)
		s.logger.Warn("conversation: knowledge base query failed",
			"error", err,
			"status", status,
			"turn", state.Len()+1,
		)
		turn := state.record(Turn{
			UserText:  text,
			BotText:   s.fallback,
			Failed:    true,
			CreatedAt: s.now().UTC(),
		})
		s.metrics.ObserveTurn(true)
		return TurnResult{Turn: turn, Segments: s.split(turn.BotText)}, nil
	}

	if answer.ContinuationToken != "" {
		if state.HasContinuationToken() && state.ContinuationToken() != answer.ContinuationToken {
			s.logger.Debug("conversation: remote session changed", "turn", state.Len()+1)
		}
		state.SetContinuationToken(answer.ContinuationToken)
	}
	turn := state.record(Turn{
		UserText:  text,
		BotText:   answer.Text,
		CreatedAt: s.now().UTC(),
	})
	s.metrics.ObserveTurn(false)

	segments := s.split(answer.Text)
	span.SetAttributes(attribute.Int("conversation.segments", len(segments)))
	s.logger.Info("conversation: turn answered",
		"turn", state.Len(),
		"segments", len(segments),
		"citations", len(answer.Citations),
	)
	return TurnResult{Turn: turn, Segments: segments, Citations: answer.Citations}, nil
}

func (s *Service) split(text string) []render.Segment {
	segments := s.lexer.Split(text)
	for _, seg := range segments {
		s.metrics.ObserveSegment(seg.Kind.String())
	}
	return segments
}
