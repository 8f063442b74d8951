package history

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultHistoryLimit is how many messages Messages returns when no limit is given.
const DefaultHistoryLimit = 50

// AppendMessage adds a single message to a conversation and touches its updated_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, role Role, text, source string) (*Message, error) {
	msgs, err := s.append(ctx, conversationID, []Message{{Role: role, Text: text, Source: source}})
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

// AppendExchange writes a user message followed by the assistant's answer in a
// single transaction. Either both messages are stored or neither is.
func (s *Store) AppendExchange(ctx context.Context, conversationID string, user, assistant Message) ([]*Message, error) {
	user.Role = RoleUser
	assistant.Role = RoleAssistant
	return s.append(ctx, conversationID, []Message{user, assistant})
}

func (s *Store) append(ctx context.Context, conversationID string, msgs []Message) ([]*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.timestamp()
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation '%s': %w", conversationID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("conversation with ID '%s': %w", conversationID, ErrConversationNotFound)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, role, message, source, created_at) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	stored := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		if !msg.Role.Valid() {
			return nil, fmt.Errorf("invalid message role %q", msg.Role)
		}
		res, err := stmt.ExecContext(ctx, conversationID, string(msg.Role), msg.Text, nullString(msg.Source), now)
		if err != nil {
			return nil, fmt.Errorf("failed to insert %s message into conversation '%s': %w", msg.Role, conversationID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		stored = append(stored, &Message{
			ID:             id,
			ConversationID: conversationID,
			Role:           msg.Role,
			Text:           msg.Text,
			Source:         msg.Source,
			CreatedAt:      now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

// Messages returns up to limit messages of a conversation, oldest first.
// A limit of zero or less means DefaultHistoryLimit.
func (s *Store) Messages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.queryMessages(ctx,
		`SELECT id, conversation_id, role, message, source, created_at FROM messages
		WHERE conversation_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		conversationID, limit)
}

// RecentMessages returns the newest limit messages of a conversation, ordered oldest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		return []*Message{}, nil
	}
	msgs, err := s.queryMessages(ctx,
		`SELECT id, conversation_id, role, message, source, created_at FROM messages
		WHERE conversation_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// DeleteMessage removes a single message. It reports whether a message was removed.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to delete message %d: %w", messageID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) queryMessages(ctx context.Context, query string, conversationID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for conversation ID '%s': %w", conversationID, err)
	}
	defer rows.Close()

	msgs := make([]*Message, 0)
	for rows.Next() {
		msg := &Message{}
		var role string
		var source sql.NullString
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Text, &source, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message for conversation ID '%s': %w", conversationID, err)
		}
		msg.Role = Role(role)
		msg.Source = source.String
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during message rows iteration for conversation ID '%s': %w", conversationID, err)
	}
	return msgs, nil
}
