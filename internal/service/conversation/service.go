package conversation

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
	"github.com/zhouzirui/exec-dashboard/backend/internal/store/archive"
)

// ErrSessionNotFound reports an unknown session identifier.
var ErrSessionNotFound = errors.New("session not found")

// Archive is the optional durable store for session snapshots. Failures
// while saving are logged and never propagated; persistence is a
// best-effort concern layered on top of the in-memory sessions.
type Archive interface {
	SaveSnapshot(ctx context.Context, snap archive.SessionSnapshot) error
	LoadSnapshot(ctx context.Context, sessionID string) (archive.SessionSnapshot, error)
	ListSessions(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Service owns every live conversation session, keyed by UUID. The
// registry lock guards the map; each entry carries its own mutex so
// operations on one session serialize while distinct sessions proceed
// concurrently. The per-session lock is never held across a model call:
// the ask flow records the question and snapshots the payload, releases,
// performs the remote call, then locks again to record the outcome.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	maxExchanges int
	store        Archive
}

type entry struct {
	mu      sync.Mutex
	session *conversation.Session
}

// Handle identifies a freshly created session.
type Handle struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"startedAt"`
	MaxExchanges int       `json:"maxExchanges"`
}

// NewService bootstraps the registry. store may be nil to disable
// persistence.
func NewService(maxExchanges int, store Archive) *Service {
	if maxExchanges < 1 {
		maxExchanges = conversation.DefaultMaxExchanges
	}
	return &Service{
		sessions:     make(map[string]*entry),
		maxExchanges: maxExchanges,
		store:        store,
	}
}

// MaxExchanges reports the retention bound applied to new sessions.
func (s *Service) MaxExchanges() int {
	return s.maxExchanges
}

// CreateSession provisions a new session, optionally seeded with a
// system message.
func (s *Service) CreateSession(ctx context.Context, systemMessage string) (Handle, error) {
	session := conversation.NewSession(s.maxExchanges)
	session.SetSystemMessage(systemMessage)

	id := uuid.NewString()
	e := &entry{session: session}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()

	s.persist(ctx, id, session)

	return Handle{
		ID:           id,
		StartedAt:    session.StartedAt(),
		MaxExchanges: s.maxExchanges,
	}, nil
}

// DeleteSession drops a session from the registry and the archive.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	if s.store != nil {
		if err := s.store.DeleteSession(ctx, sessionID); err != nil {
			log.Printf("[conversation] failed to delete archived session %s: %v", sessionID, err)
		}
	}
	return nil
}

// SetSystemMessage installs the session preamble; the first non-empty
// call wins.
func (s *Service) SetSystemMessage(ctx context.Context, sessionID, text string) error {
	return s.withSession(ctx, sessionID, true, func(session *conversation.Session) error {
		session.SetSystemMessage(text)
		return nil
	})
}

// RecordQuestion appends a pending user message to the session.
func (s *Service) RecordQuestion(ctx context.Context, sessionID, text string) error {
	return s.withSession(ctx, sessionID, true, func(session *conversation.Session) error {
		return session.RecordQuestion(text)
	})
}

// RecordAnswer completes the pending exchange.
func (s *Service) RecordAnswer(ctx context.Context, sessionID, text string) error {
	return s.withSession(ctx, sessionID, true, func(session *conversation.Session) error {
		return session.RecordAnswer(text)
	})
}

// CancelPending discards the unanswered question after a failed or
// abandoned model call.
func (s *Service) CancelPending(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, true, func(session *conversation.Session) error {
		return session.CancelPendingQuestion()
	})
}

// Undo removes the newest completed exchange.
func (s *Service) Undo(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, true, func(session *conversation.Session) error {
		return session.UndoLastExchange()
	})
}

// Clear empties the session history, keeping the system message.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, true, func(session *conversation.Session) error {
		session.Clear()
		return nil
	})
}

// GetSummary returns the session state snapshot.
func (s *Service) GetSummary(_ context.Context, sessionID string) (conversation.Summary, error) {
	var summary conversation.Summary
	err := s.withSession(context.Background(), sessionID, false, func(session *conversation.Session) error {
		summary = session.Summary()
		return nil
	})
	return summary, err
}

// Snapshot returns the ordered request-message payload, system message
// first. This is the exact sequence handed to the model, and doubles as
// the transcript served to the UI.
func (s *Service) Snapshot(_ context.Context, sessionID string) ([]conversation.Message, error) {
	var messages []conversation.Message
	err := s.withSession(context.Background(), sessionID, false, func(session *conversation.Session) error {
		messages = session.BuildRequestMessages()
		return nil
	})
	return messages, err
}

// RestoreSessions rebuilds live sessions from the archive at startup.
// Snapshots that fail validation are skipped with a log line rather
// than aborting the whole restore.
func (s *Service) RestoreSessions(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	ids, err := s.store.ListSessions(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, id := range ids {
		snap, err := s.store.LoadSnapshot(ctx, id)
		if err != nil {
			log.Printf("[conversation] skipping archived session %s: %v", id, err)
			continue
		}

		session, err := conversation.Restore(snap.Messages, s.maxExchanges, snap.StartedAt)
		if err != nil {
			log.Printf("[conversation] skipping archived session %s: %v", id, err)
			continue
		}

		s.mu.Lock()
		if _, exists := s.sessions[id]; !exists {
			s.sessions[id] = &entry{session: session}
			restored++
		}
		s.mu.Unlock()
	}

	return restored, nil
}

// withSession runs fn under the session's own lock. Mutations are
// persisted to the archive after fn succeeds, still under the lock so
// snapshots never interleave.
func (s *Service) withSession(ctx context.Context, sessionID string, mutates bool, fn func(*conversation.Session) error) error {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.session); err != nil {
		return err
	}
	if mutates {
		s.persist(ctx, sessionID, e.session)
	}
	return nil
}

func (s *Service) persist(ctx context.Context, sessionID string, session *conversation.Session) {
	if s.store == nil {
		return
	}

	snap := archive.SessionSnapshot{
		ID:        sessionID,
		StartedAt: session.StartedAt(),
		Messages:  session.BuildRequestMessages(),
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("[conversation] failed to archive session %s: %v", sessionID, err)
	}
}
