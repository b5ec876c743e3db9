package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertChatMessage(ctx context.Context, message ChatMessage) (ChatMessage, error) {
	role := message.Role
	if role == "" {
		role = ChatRoleUser
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_messages (id, workspace_id, user_id, username, content, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, message.ID, message.WorkspaceID, message.UserID, message.Username, message.Content, string(role)).Scan(&message.CreatedAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("insert chat message: %w", err)
	}
	message.Role = role
	return message, nil
}

// ListChatMessages returns the newest `limit` messages in chronological order.
func (s *PostgresStore) ListChatMessages(ctx context.Context, workspaceID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, user_id, username, content, role, created_at
		FROM (
			SELECT id, workspace_id, user_id, username, content, role, created_at
			FROM chat_messages
			WHERE workspace_id=$1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	items := make([]ChatMessage, 0)
	for rows.Next() {
		var (
			item ChatMessage
			role string
		)
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.UserID, &item.Username, &item.Content, &role, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		item.Role = ChatRole(role)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return items, nil
}
