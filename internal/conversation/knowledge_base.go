package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

var (
	// ErrEmptyMessage is returned for blank user input; no turn is recorded.
	ErrEmptyMessage = errors.New("conversation: message is empty")
	// ErrMissingAnswer means the knowledge base responded without answer text.
	ErrMissingAnswer = errors.New("conversation: knowledge base response did not include an answer")
)

// Citation ties part of an answer to the documents it was retrieved from.
type Citation struct {
	Text    string   `json:"text,omitempty"`
	Sources []string `json:"sources"`
}

// Answer is a knowledge base reply. ContinuationToken is empty when the remote
// service did not return one.
type Answer struct {
	Text              string
	ContinuationToken string
	Citations         []Citation
}

// KnowledgeBaseClient answers a question in the context of an optional
// continuation token. An empty token starts a new remote session.
type KnowledgeBaseClient interface {
	Query(ctx context.Context, text, continuationToken string) (Answer, error)
}

// RemoteError is a failed knowledge base call.
type RemoteError struct {
	Op   string
	Code string
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("conversation: %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("conversation: %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func newRemoteError(op string, err error) *RemoteError {
	re := &RemoteError{Op: op, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		re.Code = apiErr.ErrorCode()
	}
	return re
}

// remoteStatus labels a query outcome for metrics.
func remoteStatus(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrMissingAnswer) {
		return "missing_answer"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	var re *RemoteError
	if errors.As(err, &re) && re.Code != "" {
		return re.Code
	}
	return "error"
}
