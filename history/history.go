// Package history persists copilot conversations and their messages in SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultDatabasePath is the default path where the history database is stored.
var DefaultDatabasePath = ".pmcopilot/history.db"

// Store is the durable home of conversations. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for created_at/updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the history database at dbPath.
func Open(dbPath string, opts ...Option) (*Store, error) {
	db, err := initDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open/initialize database at %s: %w", dbPath, err)
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// initDB ensures the database and tables exist, returning a connection.
func initDB(dataSourceName string) (*sql.DB, error) {
	file, query, _ := strings.Cut(dataSourceName, "?")
	dbDir := filepath.Dir(file)
	if _, err := os.Stat(dbDir); os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, err
		}
	}

	// parameters given by the caller come first and win over the defaults
	dsn := file + "?_foreign_keys=on&_busy_timeout=5000"
	if query != "" {
		dsn = file + "?" + query + "&_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection keeps transactions from tripping over each other.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// CreateConversation stores a new conversation owned by userID.
func (s *Store) CreateConversation(ctx context.Context, userID, title string) (*Conversation, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	conv := &Conversation{
		ID:        id.String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?);`,
		conv.ID, conv.UserID, nullString(conv.Title), conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation for user '%s': %w", userID, err)
	}
	return conv, nil
}

// GetConversation loads a conversation's metadata.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	conv := &Conversation{}
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = ?`, conversationID).
		Scan(&conv.ID, &conv.UserID, &title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("conversation with ID '%s': %w", conversationID, ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to query conversation metadata for ID '%s': %w", conversationID, err)
	}
	conv.Title = title.String
	return conv, nil
}

// VerifyOwnership returns ErrUnauthorized unless userID owns conversationID.
func (s *Store) VerifyOwnership(ctx context.Context, conversationID, userID string) error {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = ? AND user_id = ?`, conversationID, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("failed to verify ownership of conversation '%s': %w", conversationID, err)
	}
	return nil
}

// UpdateTitle renames a conversation and touches its updated_at.
func (s *Store) UpdateTitle(ctx context.Context, conversationID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		nullString(title), s.timestamp(), conversationID)
	if err != nil {
		return fmt.Errorf("failed to update title of conversation '%s': %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation with ID '%s': %w", conversationID, ErrConversationNotFound)
	}
	return nil
}

// DeleteConversation removes a conversation and all of its messages.
// It reports whether a conversation was removed.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return false, fmt.Errorf("failed to delete messages of conversation '%s': %w", conversationID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation '%s': %w", conversationID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SweepOlderThan deletes every conversation, regardless of owner, that has not
// been updated since cutoff. It returns the number of conversations removed.
func (s *Store) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE updated_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to sweep messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep conversations: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
