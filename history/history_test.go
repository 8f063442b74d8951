package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// steppingClock returns a clock that advances one second on every call.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

// newTestStore creates a Store backed by a temporary SQLite file.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test_history.db")
	store, err := Open(dbPath, WithClock(steppingClock(time.Date(2025, 12, 12, 10, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatalf("Open(%s) failed: %v", dbPath, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateConversation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv, err := store.CreateConversation(ctx, "7", "Machines need attention?")
	if err != nil {
		t.Fatalf("CreateConversation() returned an error: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("CreateConversation() returned conversation with empty ID")
	}

	loaded, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() failed: %v", err)
	}
	if diff := cmp.Diff(conv, loaded); diff != "" {
		t.Errorf("Loaded conversation mismatch (-want +got):\n%s", diff)
	}

	_, err = store.GetConversation(ctx, "does-not-exist")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("GetConversation(missing) error = %v, want ErrConversationNotFound", err)
	}
}

func TestVerifyOwnership(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv, err := store.CreateConversation(ctx, "7", "")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}

	tests := []struct {
		name           string
		conversationID string
		userID         string
		want           error
	}{
		{"owner", conv.ID, "7", nil},
		{"other user", conv.ID, "9", ErrUnauthorized},
		{"missing conversation", "missing", "7", ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.VerifyOwnership(ctx, tt.conversationID, tt.userID)
			if !errors.Is(err, tt.want) {
				t.Errorf("VerifyOwnership(%q, %q) = %v, want %v", tt.conversationID, tt.userID, err, tt.want)
			}
		})
	}
}

func TestAppendExchange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv, err := store.CreateConversation(ctx, "7", "")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}

	stored, err := store.AppendExchange(ctx, conv.ID,
		Message{Text: "What machines need attention?"},
		Message{Text: "M004 is at high risk.", Source: "gemini"})
	if err != nil {
		t.Fatalf("AppendExchange() failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("AppendExchange() stored %d messages, want 2", len(stored))
	}

	msgs, err := store.Messages(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("Messages() failed: %v", err)
	}
	if diff := cmp.Diff(stored, msgs); diff != "" {
		t.Errorf("Messages mismatch (-want +got):\n%s", diff)
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("roles = %s, %s; want user, assistant", msgs[0].Role, msgs[1].Role)
	}

	touched, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() failed: %v", err)
	}
	if !touched.UpdatedAt.After(conv.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", touched.UpdatedAt, conv.UpdatedAt)
	}
}

func TestAppendToMissingConversation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.AppendExchange(ctx, "missing", Message{Text: "hi"}, Message{Text: "hello"})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("AppendExchange(missing) error = %v, want ErrConversationNotFound", err)
	}

	_, err = store.AppendMessage(ctx, "missing", RoleUser, "hi", "")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("AppendMessage(missing) error = %v, want ErrConversationNotFound", err)
	}
}

func TestMessagesOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv, err := store.CreateConversation(ctx, "7", "")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}
	for i := 0; i < 15; i++ {
		if _, err := store.AppendExchange(ctx, conv.ID, Message{Text: "q"}, Message{Text: "a"}); err != nil {
			t.Fatalf("AppendExchange() #%d failed: %v", i, err)
		}
	}

	for _, limit := range []int{1, 7, 20, 50} {
		msgs, err := store.Messages(ctx, conv.ID, limit)
		if err != nil {
			t.Fatalf("Messages(limit=%d) failed: %v", limit, err)
		}
		if len(msgs) > limit {
			t.Errorf("Messages(limit=%d) returned %d messages", limit, len(msgs))
		}
		for i := 1; i < len(msgs); i++ {
			if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
				t.Errorf("Messages(limit=%d) out of order at %d", limit, i)
			}
		}
	}

	recent, err := store.RecentMessages(ctx, conv.ID, 20)
	if err != nil {
		t.Fatalf("RecentMessages() failed: %v", err)
	}
	all, err := store.Messages(ctx, conv.ID, 100)
	if err != nil {
		t.Fatalf("Messages() failed: %v", err)
	}
	if diff := cmp.Diff(all[len(all)-20:], recent); diff != "" {
		t.Errorf("RecentMessages should be the newest 20, oldest first (-want +got):\n%s", diff)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv, err := store.CreateConversation(ctx, "7", "")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}
	if _, err := store.AppendExchange(ctx, conv.ID, Message{Text: "q"}, Message{Text: "a"}); err != nil {
		t.Fatalf("AppendExchange() failed: %v", err)
	}

	deleted, err := store.DeleteConversation(ctx, conv.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteConversation() = %v, %v; want true, nil", deleted, err)
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conv.ID).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Errorf("%d messages survived conversation deletion", count)
	}

	deleted, err = store.DeleteConversation(ctx, conv.ID)
	if err != nil || deleted {
		t.Errorf("second DeleteConversation() = %v, %v; want false, nil", deleted, err)
	}
}

func TestUpdateTitleAndDeleteMessage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	conv, err := store.CreateConversation(ctx, "7", "")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}
	if err := store.UpdateTitle(ctx, conv.ID, "Renamed"); err != nil {
		t.Fatalf("UpdateTitle() failed: %v", err)
	}
	loaded, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() failed: %v", err)
	}
	if loaded.Title != "Renamed" {
		t.Errorf("Title = %q, want %q", loaded.Title, "Renamed")
	}
	if err := store.UpdateTitle(ctx, "missing", "x"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("UpdateTitle(missing) error = %v, want ErrConversationNotFound", err)
	}

	msg, err := store.AppendMessage(ctx, conv.ID, RoleUser, "hello", "")
	if err != nil {
		t.Fatalf("AppendMessage() failed: %v", err)
	}
	deleted, err := store.DeleteMessage(ctx, msg.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteMessage() = %v, %v; want true, nil", deleted, err)
	}
	msgs, err := store.Messages(ctx, conv.ID, 0)
	if err != nil {
		t.Fatalf("Messages() failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Messages() after delete returned %d messages", len(msgs))
	}
}

func TestSweepOlderThan(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	old, err := store.CreateConversation(ctx, "7", "old")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}
	if _, err := store.AppendExchange(ctx, old.ID, Message{Text: "q"}, Message{Text: "a"}); err != nil {
		t.Fatalf("AppendExchange() failed: %v", err)
	}
	cutoff := store.now().Add(time.Millisecond)
	fresh, err := store.CreateConversation(ctx, "9", "fresh")
	if err != nil {
		t.Fatalf("CreateConversation() failed: %v", err)
	}

	removed, err := store.SweepOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("SweepOlderThan() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepOlderThan() removed %d, want 1", removed)
	}
	if _, err := store.GetConversation(ctx, old.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("old conversation survived the sweep: %v", err)
	}
	if _, err := store.GetConversation(ctx, fresh.ID); err != nil {
		t.Errorf("fresh conversation was swept: %v", err)
	}
}

func TestOpenWithDSNParameters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := Open(filepath.Join(dir, "history.db") + "?_busy_timeout=1000")
	if err != nil {
		t.Fatalf("Open with DSN parameters failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var foreignKeys int
	if err := store.db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("expected foreign keys to stay enabled, got %d", foreignKeys)
	}
	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}
