package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zhouzirui/exec-dashboard/backend/internal/model/conversation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadSnapshotRoundTrips(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	snap := SessionSnapshot{
		ID:        "session-1",
		StartedAt: started,
		Messages: []conversation.Message{
			{Role: conversation.RoleSystem, Content: "You are a retail analyst."},
			{Role: conversation.RoleUser, Content: "Question: top stores?"},
			{Role: conversation.RoleAssistant, Content: "Store S07 leads."},
		},
	}

	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot err: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "session-1")
	if err != nil {
		t.Fatalf("LoadSnapshot err: %v", err)
	}
	if !loaded.StartedAt.Equal(started) {
		t.Fatalf("startedAt mismatch: got %v want %v", loaded.StartedAt, started)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded.Messages))
	}
	for i, msg := range snap.Messages {
		if loaded.Messages[i] != msg {
			t.Fatalf("message %d mismatch: got %+v want %+v", i, loaded.Messages[i], msg)
		}
	}
}

func TestSaveSnapshotReplacesMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := SessionSnapshot{
		ID:        "session-1",
		StartedAt: time.Now().UTC(),
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Content: "Q1"},
			{Role: conversation.RoleAssistant, Content: "A1"},
		},
	}
	if err := store.SaveSnapshot(ctx, first); err != nil {
		t.Fatalf("SaveSnapshot err: %v", err)
	}

	second := first
	second.Messages = []conversation.Message{
		{Role: conversation.RoleUser, Content: "Q2"},
	}
	if err := store.SaveSnapshot(ctx, second); err != nil {
		t.Fatalf("SaveSnapshot err: %v", err)
	}

	loaded, err := store.LoadSnapshot(ctx, "session-1")
	if err != nil {
		t.Fatalf("LoadSnapshot err: %v", err)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "Q2" {
		t.Fatalf("expected replaced history, got %+v", loaded.Messages)
	}
}

func TestLoadSnapshotUnknownSession(t *testing.T) {
	store := openTestStore(t)

	_, err := store.LoadSnapshot(context.Background(), "missing")
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestDeleteSessionRemovesSnapshot(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	snap := SessionSnapshot{ID: "session-1", StartedAt: time.Now().UTC()}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("SaveSnapshot err: %v", err)
	}
	if err := store.DeleteSession(ctx, "session-1"); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}

	if _, err := store.LoadSnapshot(ctx, "session-1"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound after delete, got %v", err)
	}

	ids, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty session list, got %v", ids)
	}
}

func TestListSessionsOrdersByRecency(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.SaveSnapshot(ctx, SessionSnapshot{ID: id, StartedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("SaveSnapshot err: %v", err)
		}
	}

	ids, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(ids))
	}
}
