// Package chat persists workspace chat messages and routes messages that
// mention the assistant to it.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/metrics"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

const (
	// MentionToken at the start of a message routes it to the assistant.
	MentionToken = "@AI"
	// AssistantSender is the user id and name the assistant's replies carry.
	AssistantSender = "AI_ASSISTANT"

	maxContentLength = 4000
)

type Store interface {
	InsertChatMessage(ctx context.Context, message store.ChatMessage) (store.ChatMessage, error)
	ListChatMessages(ctx context.Context, workspaceID string, limit int) ([]store.ChatMessage, error)
}

type Agent interface {
	Reply(ctx context.Context, req AgentRequest) (string, error)
}

type Service struct {
	store Store
	agent Agent
}

// NewService builds the chat service. A nil agent disables mention routing.
func NewService(s Store, agent Agent) *Service {
	return &Service{store: s, agent: agent}
}

// Post persists a user message.
func (s *Service) Post(ctx context.Context, workspaceID, userID, username, content string) (store.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return store.ChatMessage{}, apperr.Validation("message content is required", nil)
	}
	if len(content) > maxContentLength {
		return store.ChatMessage{}, apperr.Validation("message content is too long", map[string]any{"max": maxContentLength})
	}
	msg, err := s.store.InsertChatMessage(ctx, store.ChatMessage{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Username:    username,
		Content:     content,
		Role:        store.ChatRoleUser,
	})
	if err != nil {
		return store.ChatMessage{}, fmt.Errorf("post chat message: %w", err)
	}
	return msg, nil
}

func (s *Service) History(ctx context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	return s.store.ListChatMessages(ctx, workspaceID, limit)
}

// Mentions reports whether msg should be routed to the assistant.
func (s *Service) Mentions(msg store.ChatMessage) bool {
	return s.agent != nil && msg.Role == store.ChatRoleUser && strings.HasPrefix(msg.Content, MentionToken)
}

// Answer asks the assistant about msg and persists its reply.
func (s *Service) Answer(ctx context.Context, msg store.ChatMessage) (store.ChatMessage, error) {
	if s.agent == nil {
		return store.ChatMessage{}, fmt.Errorf("agent not configured")
	}
	question := strings.TrimSpace(strings.TrimPrefix(msg.Content, MentionToken))
	reply, err := s.agent.Reply(ctx, AgentRequest{
		WorkspaceID: msg.WorkspaceID,
		UserID:      msg.UserID,
		Username:    msg.Username,
		Message:     question,
	})
	if err != nil {
		metrics.AgentRequests.WithLabelValues("error").Inc()
		return store.ChatMessage{}, err
	}
	metrics.AgentRequests.WithLabelValues("ok").Inc()

	saved, err := s.store.InsertChatMessage(ctx, store.ChatMessage{
		ID:          uuid.NewString(),
		WorkspaceID: msg.WorkspaceID,
		UserID:      AssistantSender,
		Username:    AssistantSender,
		Content:     reply,
		Role:        store.ChatRoleAI,
	})
	if err != nil {
		return store.ChatMessage{}, fmt.Errorf("save agent reply: %w", err)
	}
	return saved, nil
}
