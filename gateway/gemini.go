package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultMaxOutputTokens = 4 * 1024

// Gemini generates text through the Gemini API.
type Gemini struct {
	client          *genai.Client
	name            string
	maxOutputTokens int32
}

// NewGemini creates a Gemini provider. An empty name defaults to "gemini";
// maxOutputTokens <= 0 uses the default.
func NewGemini(ctx context.Context, apiKey, name string, maxOutputTokens int32) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if name == "" {
		name = "gemini"
	}
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	return &Gemini{client: client, name: name, maxOutputTokens: maxOutputTokens}, nil
}

func (g *Gemini) Name() string { return g.name }

func (g *Gemini) Generate(ctx context.Context, model, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: g.maxOutputTokens,
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}, config)
	if err != nil {
		return "", geminiError(err)
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// geminiError turns API errors into a *StatusError so they classify by code.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %w", &StatusError{Code: apiErr.Code, Status: apiErr.Status, Message: apiErr.Message})
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return fmt.Errorf("gemini: %w", &StatusError{Code: apiErrPtr.Code, Status: apiErrPtr.Status, Message: apiErrPtr.Message})
	}
	return fmt.Errorf("gemini: %w", err)
}
