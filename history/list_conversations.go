package history

import (
	"context"
	"database/sql"
	"fmt"
)

// ListConversations retrieves metadata for every conversation owned by userID,
// most recently updated first.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]ConversationMetadata, error) {
	query := `
		SELECT
			c.id,
			c.user_id,
			c.title,
			c.created_at,
			c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count,
			(SELECT m.message FROM messages m WHERE m.conversation_id = c.id
				ORDER BY m.created_at DESC, m.id DESC LIMIT 1) AS last_message
		FROM
			conversations c
		WHERE
			c.user_id = ?
		ORDER BY
			c.updated_at DESC, c.created_at DESC;
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	metadataList := make([]ConversationMetadata, 0)
	for rows.Next() {
		var meta ConversationMetadata
		var title, lastMessage sql.NullString
		if err := rows.Scan(&meta.ID, &meta.UserID, &title, &meta.CreatedAt, &meta.UpdatedAt,
			&meta.MessageCount, &lastMessage); err != nil {
			return nil, fmt.Errorf("failed to scan conversation metadata: %w", err)
		}
		meta.Title = title.String
		meta.LastMessage = lastMessage.String
		metadataList = append(metadataList, meta)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return metadataList, nil
}
