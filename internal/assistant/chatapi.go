package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation, oldest first.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	SessionID  string    `json:"session_id"`
	Messages   []Message `json:"messages"`
	ProductID  string    `json:"product_id,omitempty"`
	CategoryID string    `json:"category_id,omitempty"`
}

type ChatResponse struct {
	Messages []Message `json:"messages"`
}

// ChatClient is the upstream conversational API.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// UpstreamTimeout bounds one upstream exchange. Callers budget their request
// contexts above it so this is the timeout that fires first.
const UpstreamTimeout = 30 * time.Second

// HTTPChatClient talks JSON to the upstream assistant service.
type HTTPChatClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPChatClient(baseURL string) *HTTPChatClient {
	return &HTTPChatClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: UpstreamTimeout},
	}
}

func (c *HTTPChatClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("assistant upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return ChatResponse{}, fmt.Errorf("assistant upstream: status %d: %s", resp.StatusCode, b)
	}
	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ChatResponse{}, fmt.Errorf("assistant upstream: decode: %w", err)
	}
	return out, nil
}
