package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIGenerate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/chat/completions" {
			t.Errorf("Expected to request /openai/v1/chat/completions, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Expected Authorization header 'Bearer test-key', got %s", got)
		}

		var reqBody chatRequest
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if reqBody.Model != "llama-3.3-70b-versatile" {
			t.Errorf("Expected model llama-3.3-70b-versatile, got %s", reqBody.Model)
		}
		if len(reqBody.Messages) != 1 || reqBody.Messages[0].Role != "user" || reqBody.Messages[0].Content != "the prompt" {
			t.Errorf("Unexpected messages: %+v", reqBody.Messages)
		}
		if reqBody.MaxTokens != 1024 {
			t.Errorf("Expected max_tokens 1024, got %d", reqBody.MaxTokens)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "M004 needs a cooling check."}}}})
	}))
	defer server.Close()

	p := NewOpenAI("groq", server.URL+"/openai/v1/", "test-key", 1024)
	got, err := p.Generate(context.Background(), "llama-3.3-70b-versatile", "the prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "M004 needs a cooling check." {
		t.Errorf("Generate() = %q", got)
	}
}

func TestOpenAIGenerate_ErrorStatus(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
		body       string
		wantKind   Kind
		wantMsg    string
	}{
		{
			name:       "401 Unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error": {"message": "Invalid API Key", "type": "invalid_request_error", "code": "invalid_api_key"}}`,
			wantKind:   KindAuth,
			wantMsg:    "Invalid API Key",
		},
		{
			name:       "429 Rate Limit",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error": {"message": "Rate limit reached", "type": "tokens", "code": "rate_limit_exceeded"}}`,
			wantKind:   KindRateLimited,
			wantMsg:    "Rate limit reached",
		},
		{
			name:       "502 plain body",
			statusCode: http.StatusBadGateway,
			body:       "bad gateway",
			wantKind:   KindUnavailable,
			wantMsg:    "bad gateway",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := NewOpenAI("groq", server.URL, "k", 0).Generate(context.Background(), "m", "p")
			if err == nil {
				t.Fatal("expected an error")
			}
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("expected a *StatusError, got %T: %v", err, err)
			}
			if statusErr.Code != tc.statusCode {
				t.Errorf("Code = %d, want %d", statusErr.Code, tc.statusCode)
			}
			if statusErr.Message != tc.wantMsg {
				t.Errorf("Message = %q, want %q", statusErr.Message, tc.wantMsg)
			}
			if kind := Classify(err); kind != tc.wantKind {
				t.Errorf("Classify() = %q, want %q", kind, tc.wantKind)
			}
		})
	}
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	_, err := NewOpenAI("", server.URL, "k", 0).Generate(context.Background(), "m", "p")
	if err == nil {
		t.Fatal("expected an error for an empty choice list")
	}
}

func TestNewOpenAIDefaults(t *testing.T) {
	p := NewOpenAI("", "", "k", 0)
	if p.Name() != "groq" {
		t.Errorf("Name() = %q, want groq", p.Name())
	}
	if p.endpoint != DefaultGroqEndpoint {
		t.Errorf("endpoint = %q, want %q", p.endpoint, DefaultGroqEndpoint)
	}
}
