package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/desertthunder/vibes/internal/shared"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(shared.AIConfig{APIKey: "key", BaseURL: server.URL + "/", TimeoutSeconds: 5}, nil)
}

func completion(content string) string {
	body, _ := json.Marshal(ChatCompletionResponse{
		Model:   "test",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}, FinishReason: "stop"}},
	})
	return string(body)
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Complete", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer key" {
				t.Errorf("missing bearer token")
			}

			var req ChatCompletionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("failed to decode request: %v", err)
				return
			}
			if req.Model != DefaultModel || len(req.Messages) != 2 || req.Messages[1].Content != "hello" {
				t.Errorf("unexpected request %+v", req)
			}
			w.Write([]byte(completion("hi there")))
		})

		got, err := client.Complete(ctx, "system", "hello")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != "hi there" {
			t.Errorf("expected content, got %q", got)
		}
	})

	t.Run("Missing API Key", func(t *testing.T) {
		client := NewClient(shared.AIConfig{}, nil)
		_, err := client.Complete(ctx, "s", "u")
		if !errors.Is(err, shared.ErrProviderUnavailable) || !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrProviderUnavailable wrapping ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Errors Wrap ProviderUnavailable", func(t *testing.T) {
		tests := []struct {
			name    string
			status  int
			body    string
			wantErr error
		}{
			{"server error", http.StatusInternalServerError, "", shared.ErrServiceUnavailable},
			{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model"}}`, shared.ErrAPIRequest},
			{"garbage", http.StatusOK, "<html>", shared.ErrMalformedResponse},
			{"no choices", http.StatusOK, `{"choices":[]}`, shared.ErrMalformedResponse},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
				})

				_, err := client.Complete(ctx, "s", "u")
				if !errors.Is(err, shared.ErrProviderUnavailable) {
					t.Errorf("expected ErrProviderUnavailable, got %v", err)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}
	})

	t.Run("Circuit Opens", func(t *testing.T) {
		var hits atomic.Int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		client.limiter.SetLimit(1000)

		for range shared.BreakerThreshold + 3 {
			client.Complete(ctx, "s", "u")
		}
		if got := hits.Load(); got != int32(shared.BreakerThreshold) {
			t.Errorf("expected %d requests before the circuit opened, got %d", shared.BreakerThreshold, got)
		}
	})
}

type stubCompleter struct {
	content string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, _, user string) (string, error) {
	s.prompts = append(s.prompts, user)
	return s.content, s.err
}

func TestSuggester(t *testing.T) {
	ctx := context.Background()

	t.Run("GenerateVibeOptions caps count", func(t *testing.T) {
		var b strings.Builder
		b.WriteString(`{"options":[`)
		for i := range 20 {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"title":"V","track":{"title":"T","artist":"A"}}`)
		}
		b.WriteString(`]}`)

		stub := &stubCompleter{content: b.String()}
		s := NewSuggester(stub, nil)

		options, err := s.GenerateVibeOptions(ctx, VibeOptionsRequest{Instruction: "late night", Count: 40})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(options) != MaxVibeOptions {
			t.Errorf("expected %d options, got %d", MaxVibeOptions, len(options))
		}
		if !strings.Contains(stub.prompts[0], "late night") || !strings.Contains(stub.prompts[0], "Suggest 16") {
			t.Errorf("prompt should carry the instruction and capped count:\n%s", stub.prompts[0])
		}
	})

	t.Run("GenerateRescueVibe renders skips and exclusions", func(t *testing.T) {
		stub := &stubCompleter{content: `{"vibe":"Reset","tracks":[{"title":"A","artist":"B"}]}`}
		s := NewSuggester(stub, nil)

		req := RescueRequest{ListeningContext: ListeningContext{Exclusions: []string{"Creep - Radiohead"}}}
		got, err := s.GenerateRescueVibe(ctx, req)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.Vibe != "Reset" || len(got.Items) != 1 {
			t.Errorf("unexpected suggestions %+v", got)
		}
		if !strings.Contains(stub.prompts[0], "Creep - Radiohead") {
			t.Errorf("prompt should list exclusions:\n%s", stub.prompts[0])
		}
	})

	t.Run("provider errors pass through", func(t *testing.T) {
		s := NewSuggester(&stubCompleter{err: shared.ErrProviderUnavailable}, nil)
		if _, err := s.ExpandVibe(ctx, ExpandRequest{}); !errors.Is(err, shared.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("malformed answer", func(t *testing.T) {
		s := NewSuggester(&stubCompleter{content: "sorry"}, nil)
		if _, err := s.ExpandVibe(ctx, ExpandRequest{}); !errors.Is(err, shared.ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}
