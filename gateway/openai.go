package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultGroqEndpoint is the OpenAI-compatible base URL of Groq.
const DefaultGroqEndpoint = "https://api.groq.com/openai/v1"

const maxErrorBodySize = 64 * 1024

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *errorDetail `json:"error,omitempty"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"` // string or number depending on the vendor
}

// OpenAI talks to any endpoint implementing the OpenAI chat completions API.
type OpenAI struct {
	name      string
	endpoint  string
	apiKey    string
	maxTokens int
	client    *http.Client
}

// NewOpenAI creates an OpenAI-compatible provider. An empty endpoint means Groq.
func NewOpenAI(name, endpoint, apiKey string, maxTokens int) *OpenAI {
	if name == "" {
		name = "groq"
	}
	if endpoint == "" {
		endpoint = DefaultGroqEndpoint
	}
	return &OpenAI{
		name:      name,
		endpoint:  strings.TrimRight(endpoint, "/"),
		apiKey:    apiKey,
		maxTokens: maxTokens,
		client:    &http.Client{},
	}
}

func (o *OpenAI) Name() string { return o.name }

func (o *OpenAI) Generate(ctx context.Context, model, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: o.maxTokens,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal request: %w", o.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("%s: failed to create request: %w", o.name, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: failed to send request: %w", o.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		statusErr := &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(bodyBytes))}
		var errResp chatResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != nil {
			statusErr.Status = errResp.Error.Type
			statusErr.Message = errResp.Error.Message
		}
		return "", fmt.Errorf("%s: %w", o.name, statusErr)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%s: failed to decode response: %w", o.name, err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("%s: %s (type: %s, code: %v)", o.name, chatResp.Error.Message, chatResp.Error.Type, chatResp.Error.Code)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices in response", o.name)
	}
	return chatResp.Choices[0].Message.Content, nil
}
