package openrouter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tashasho/social-media-posting-automator/internal/models"

	"go.uber.org/zap"
)

func TestGenerateResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr string
	}{
		{"ok", http.StatusOK, `{"choices":[{"message":{"content":"Hello LinkedIn"}}]}`, "Hello LinkedIn", ""},
		{"api error", http.StatusOK, `{"error":{"message":"bad model","type":"invalid","code":"400"}}`, "", "bad model"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "", "no choices"},
		{"http error", http.StatusBadGateway, `upstream`, "", "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("X-Title") == "" {
					t.Error("missing X-Title header")
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 1, RetryDelay: time.Millisecond}, zap.NewNop())
			if err != nil {
				t.Fatal(err)
			}

			got, err := c.Generate(context.Background(), models.GenerationRequest{Prompt: "p", Temperature: 0.7, MaxTokens: 500})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("got err %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
