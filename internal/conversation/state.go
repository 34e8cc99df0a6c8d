package conversation

import "time"

// Turn is one user message paired with the answer shown for it.
type Turn struct {
	UserText  string    `json:"user_text"`
	BotText   string    `json:"bot_text"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the turn history and continuation token of one chat session.
// It has a single owner; callers sharing a State across goroutines must
// serialize access themselves (see Session).
type State struct {
	turns             []Turn
	continuationToken string
}

// NewState returns an empty conversation with no continuation token.
func NewState() *State {
	return &State{}
}

// NewStateWithToken seeds a conversation that continues a remote session the
// caller already holds a token for.
func NewStateWithToken(token string) *State {
	return &State{continuationToken: token}
}

// Append adds a turn to the end of the history. It never touches the
// continuation token.
func (s *State) Append(userText, botText string) Turn {
	return s.record(Turn{UserText: userText, BotText: botText, CreatedAt: time.Now().UTC()})
}

func (s *State) record(t Turn) Turn {
	s.turns = append(s.turns, t)
	return t
}

// Turns returns the history oldest first. The slice is a copy.
func (s *State) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of recorded turns.
func (s *State) Len() int {
	return len(s.turns)
}

// ContinuationToken returns the remote session id, or "" before the first
// successful answer supplied one.
func (s *State) ContinuationToken() string {
	return s.continuationToken
}

// HasContinuationToken reports whether a remote session id has been set.
func (s *State) HasContinuationToken() bool {
	return s.continuationToken != ""
}

// SetContinuationToken stores the remote session id for the next query.
func (s *State) SetContinuationToken(token string) {
	s.continuationToken = token
}
