package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AgentConfig points at the planning assistant that answers @AI mentions.
type AgentConfig struct {
	URL     string
	Timeout time.Duration
}

// AgentRequest is the body posted to the assistant.
type AgentRequest struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Message     string `json:"message"`
}

type agentResponse struct {
	Reply string `json:"reply"`
}

// HTTPAgent calls the assistant over HTTP.
type HTTPAgent struct {
	config AgentConfig
	client *http.Client
}

func NewHTTPAgent(config AgentConfig) *HTTPAgent {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAgent{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (a *HTTPAgent) IsConfigured() bool {
	return a != nil && strings.TrimSpace(a.config.URL) != ""
}

func (a *HTTPAgent) Reply(ctx context.Context, req AgentRequest) (string, error) {
	if !a.IsConfigured() {
		return "", fmt.Errorf("agent not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var decoded agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode agent reply: %w", err)
	}
	if strings.TrimSpace(decoded.Reply) == "" {
		return "", fmt.Errorf("agent returned an empty reply")
	}
	return decoded.Reply, nil
}
