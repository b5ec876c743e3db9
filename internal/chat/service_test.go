package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store/storetest"
)

const testWorkspace = "5a1e7c3d-2b4f-4e6a-9c8d-0f1e2d3c4b5a"

type agentFunc func(ctx context.Context, req AgentRequest) (string, error)

func (f agentFunc) Reply(ctx context.Context, req AgentRequest) (string, error) { return f(ctx, req) }

func newMemoryWithWorkspace(t *testing.T) *storetest.Memory {
	t.Helper()
	mem := storetest.NewMemory()
	mem.AddProposal(store.Proposal{ID: "proposal-1", Title: "Jeju"})
	_, _, _, err := mem.CreateWorkspace(context.Background(), store.Workspace{ID: testWorkspace, ProposalID: "proposal-1", Name: "Jeju"}, nil)
	require.NoError(t, err)
	return mem
}

func TestPostPersistsTrimmedMessage(t *testing.T) {
	mem := newMemoryWithWorkspace(t)
	svc := NewService(mem, nil)

	msg, err := svc.Post(context.Background(), testWorkspace, "u1", "Minji", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, store.ChatRoleUser, msg.Role)
	assert.NotEmpty(t, msg.ID)

	history, err := svc.History(context.Background(), testWorkspace, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestPostRejectsBlankAndOversized(t *testing.T) {
	svc := NewService(newMemoryWithWorkspace(t), nil)

	_, err := svc.Post(context.Background(), testWorkspace, "u1", "Minji", "   ")
	assert.True(t, apperr.IsValidation(err))

	_, err = svc.Post(context.Background(), testWorkspace, "u1", "Minji", strings.Repeat("a", maxContentLength+1))
	assert.True(t, apperr.IsValidation(err))
}

func TestMentionsRequiresAgentAndPrefix(t *testing.T) {
	user := store.ChatMessage{Role: store.ChatRoleUser, Content: "@AI where should we eat?"}

	assert.False(t, NewService(nil, nil).Mentions(user))

	svc := NewService(nil, agentFunc(func(context.Context, AgentRequest) (string, error) { return "", nil }))
	assert.True(t, svc.Mentions(user))
	assert.False(t, svc.Mentions(store.ChatMessage{Role: store.ChatRoleUser, Content: "ask @AI later"}))
	assert.False(t, svc.Mentions(store.ChatMessage{Role: store.ChatRoleAI, Content: "@AI loop"}))
}

func TestAnswerPersistsAssistantReply(t *testing.T) {
	mem := newMemoryWithWorkspace(t)
	var got AgentRequest
	svc := NewService(mem, agentFunc(func(_ context.Context, req AgentRequest) (string, error) {
		got = req
		return "Try Dongmun market.", nil
	}))

	msg, err := svc.Post(context.Background(), testWorkspace, "u1", "Minji", "@AI where should we eat?")
	require.NoError(t, err)
	reply, err := svc.Answer(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "where should we eat?", got.Message)
	assert.Equal(t, testWorkspace, got.WorkspaceID)
	assert.Equal(t, AssistantSender, reply.UserID)
	assert.Equal(t, AssistantSender, reply.Username)
	assert.Equal(t, store.ChatRoleAI, reply.Role)

	history, err := svc.History(context.Background(), testWorkspace, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestAnswerSurfacesAgentFailure(t *testing.T) {
	mem := newMemoryWithWorkspace(t)
	svc := NewService(mem, agentFunc(func(context.Context, AgentRequest) (string, error) {
		return "", errors.New("agent down")
	}))
	_, err := svc.Answer(context.Background(), store.ChatMessage{WorkspaceID: testWorkspace, Content: "@AI hi", Role: store.ChatRoleUser})
	require.Error(t, err)
	assert.Equal(t, 0, mem.CallCount("InsertChatMessage"))
}

func TestHTTPAgentReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": "echo: " + req.Message})
	}))
	defer server.Close()

	agent := NewHTTPAgent(AgentConfig{URL: server.URL, Timeout: time.Second})
	require.True(t, agent.IsConfigured())
	reply, err := agent.Reply(context.Background(), AgentRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply)
}

func TestHTTPAgentErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	_, err := NewHTTPAgent(AgentConfig{URL: failing.URL}).Reply(context.Background(), AgentRequest{Message: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"reply":"  "}`))
	}))
	defer empty.Close()
	_, err = NewHTTPAgent(AgentConfig{URL: empty.URL}).Reply(context.Background(), AgentRequest{Message: "hi"})
	require.Error(t, err)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	_, err = NewHTTPAgent(AgentConfig{URL: slow.URL, Timeout: 50 * time.Millisecond}).Reply(context.Background(), AgentRequest{Message: "hi"})
	require.Error(t, err)

	assert.False(t, NewHTTPAgent(AgentConfig{}).IsConfigured())
}
