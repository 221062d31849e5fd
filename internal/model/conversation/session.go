package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrEmptyQuestion     = errors.New("question text is empty")
	ErrQuestionPending   = errors.New("previous question is still awaiting an answer")
	ErrNoPendingQuestion = errors.New("no pending question")
	ErrNothingToUndo     = errors.New("no completed exchange to undo")
)

// DefaultMaxExchanges bounds how many question/answer pairs a session
// retains when no explicit limit is configured.
const DefaultMaxExchanges = 10

// Session owns the bounded, ordered conversational state for one user
// interaction context. A user message and its assistant reply form an
// exchange; once the retained pair count exceeds maxExchanges the oldest
// pairs are dropped first, so recency is preserved. The optional system
// message sits outside the history: it is always sent first, never
// counted, and never trimmed.
//
// A Session performs no locking of its own. It expects a single logical
// owner; callers that share one session across goroutines must serialize
// access themselves (the service registry does exactly that).
type Session struct {
	systemMessage *Message
	history       []Message
	maxExchanges  int
	startedAt     time.Time
	now           func() time.Time
}

// NewSession creates an empty session retaining at most maxExchanges
// completed pairs. Non-positive limits fall back to DefaultMaxExchanges.
func NewSession(maxExchanges int) *Session {
	if maxExchanges < 1 {
		maxExchanges = DefaultMaxExchanges
	}
	s := &Session{
		maxExchanges: maxExchanges,
		now:          time.Now,
	}
	s.startedAt = s.now().UTC()
	return s
}

// Restore rebuilds a session from a previously serialized message
// sequence (an optional leading system message, then strictly
// alternating user/assistant messages; a trailing unanswered user
// message restores the awaiting-answer state). startedAt is carried
// over so elapsed-duration reporting survives the round trip.
func Restore(messages []Message, maxExchanges int, startedAt time.Time) (*Session, error) {
	s := NewSession(maxExchanges)
	if !startedAt.IsZero() {
		s.startedAt = startedAt.UTC()
	}

	rest := messages
	if len(rest) > 0 && rest[0].Role == RoleSystem {
		s.systemMessage = &Message{Role: RoleSystem, Content: rest[0].Content}
		rest = rest[1:]
	}

	for i, msg := range rest {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if msg.Role != want {
			return nil, fmt.Errorf("restore: message %d has role %q, want %q", i, msg.Role, want)
		}
	}

	s.history = append(s.history, rest...)
	s.trim()
	return s, nil
}

// SetSystemMessage installs the session preamble. The first non-empty
// call wins; later calls are no-ops, so a conversation keeps the framing
// it started with. Never touches history or the pending state.
func (s *Session) SetSystemMessage(text string) {
	if s.systemMessage != nil {
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	s.systemMessage = &Message{Role: RoleSystem, Content: text}
}

// RecordQuestion appends a user message and marks it as awaiting an
// answer. Blank text is rejected with ErrEmptyQuestion; a second
// question before the prior one is answered (or cancelled) is rejected
// with ErrQuestionPending. State is unchanged on failure.
func (s *Session) RecordQuestion(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyQuestion
	}
	if s.awaitingAnswer() {
		return ErrQuestionPending
	}
	s.history = append(s.history, Message{Role: RoleUser, Content: text})
	return nil
}

// RecordAnswer completes the pending exchange with an assistant message,
// then drops the oldest pairs until the retained count fits the bound.
// Fails with ErrNoPendingQuestion when no question is outstanding.
func (s *Session) RecordAnswer(text string) error {
	if !s.awaitingAnswer() {
		return ErrNoPendingQuestion
	}
	s.history = append(s.history, Message{Role: RoleAssistant, Content: text})
	s.trim()
	return nil
}

// CancelPendingQuestion discards the unanswered user message, returning
// the session to idle. This is the recovery primitive for callers whose
// external model call failed, timed out, or was cancelled.
func (s *Session) CancelPendingQuestion() error {
	if !s.awaitingAnswer() {
		return ErrNoPendingQuestion
	}
	s.history = s.history[:len(s.history)-1]
	return nil
}

// UndoLastExchange removes the newest completed question/answer pair.
// Repeated calls walk backwards one pair at a time. Undo operates on
// completed pairs only: an empty history or a pending question fails
// with ErrNothingToUndo.
func (s *Session) UndoLastExchange() error {
	if s.awaitingAnswer() {
		return ErrNothingToUndo
	}
	if len(s.history) < 2 {
		return ErrNothingToUndo
	}
	s.history = s.history[:len(s.history)-2]
	return nil
}

// Clear empties the history and restarts the session clock. The system
// message survives. Clearing an already-empty session is a no-op apart
// from the clock reset.
func (s *Session) Clear() {
	s.history = nil
	s.startedAt = s.now().UTC()
}

// BuildRequestMessages returns a copy of the outgoing payload: the
// system message when set, then the full history in order. Safe to call
// in any state, including while a question is awaiting its answer, which
// is exactly when the caller ships the payload to the model.
func (s *Session) BuildRequestMessages() []Message {
	out := make([]Message, 0, len(s.history)+1)
	if s.systemMessage != nil {
		out = append(out, *s.systemMessage)
	}
	return append(out, s.history...)
}

// Summary reports the session state without mutating it. ExchangeCount
// counts completed pairs only, so a pending question is not included.
type Summary struct {
	ExchangeCount    int           `json:"exchangeCount"`
	Pending          bool          `json:"pending"`
	HasSystemMessage bool          `json:"hasSystemMessage"`
	StartedAt        time.Time     `json:"startedAt"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Summary returns a read-only snapshot of the session state.
func (s *Session) Summary() Summary {
	return Summary{
		ExchangeCount:    len(s.history) / 2,
		Pending:          s.awaitingAnswer(),
		HasSystemMessage: s.systemMessage != nil,
		StartedAt:        s.startedAt,
		Elapsed:          s.now().UTC().Sub(s.startedAt),
	}
}

// MaxExchanges reports the configured retention bound.
func (s *Session) MaxExchanges() int {
	return s.maxExchanges
}

// StartedAt reports when the session started (or was last cleared).
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// awaitingAnswer derives the state machine position from the log: an odd
// history length means the trailing user message has no reply yet.
func (s *Session) awaitingAnswer() bool {
	return len(s.history)%2 == 1
}

func (s *Session) trim() {
	for len(s.history)/2 > s.maxExchanges {
		s.history = s.history[2:]
	}
}
