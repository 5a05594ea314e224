// Package openai is a minimal Chat Completions client used as the call
// dialogue engine.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/dialer/internal/transcript"
)

const (
	apiURL = "https://api.openai.com/v1/chat/completions"

	defaultTemperature = 0.7
)

type Client struct {
	apiKey      string
	model       string
	temperature float64
	apiURL      string
	client      *http.Client
}

func NewClient(apiKey, model string) *Client {
	return &Client{
		apiKey:      apiKey,
		model:       model,
		temperature: defaultTemperature,
		apiURL:      apiURL,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// SetTestTransport points the client at a test server.
func (c *Client) SetTestTransport(url string) {
	c.apiURL = url
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type response struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

var roles = map[transcript.Role]string{
	transcript.RoleSystem: "system",
	transcript.RoleAgent:  "assistant",
	transcript.RoleCaller: "user",
}

// GenerateReply returns the persona's next line for the call transcript.
func (c *Client) GenerateReply(ctx context.Context, t transcript.Transcript) (string, error) {
	msgs := make([]Message, 0, len(t))
	for _, turn := range t {
		msgs = append(msgs, Message{Role: roles[turn.Role], Content: turn.Text})
	}
	return c.Complete(ctx, msgs)
}

// Prompt runs a single-shot instruction against the model.
func (c *Client) Prompt(ctx context.Context, system, user string) (string, error) {
	return c.Complete(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	})
}

// Complete sends a chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(request{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return apiResp.Choices[0].Message.Content, nil
}
