package history

import (
	"context"
	"database/sql"
	"fmt"
)

// LatestConversationID returns the ID of the conversation userID touched most recently.
// If the user has no conversations, it returns ErrConversationNotFound.
func (s *Store) LatestConversationID(ctx context.Context, userID string) (string, error) {
	var id string
	query := "SELECT id FROM conversations WHERE user_id = ? ORDER BY updated_at DESC LIMIT 1"
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrConversationNotFound
		}
		return "", fmt.Errorf("failed to query for latest conversation ID: %w", err)
	}
	return id, nil
}
