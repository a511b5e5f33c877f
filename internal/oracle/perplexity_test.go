package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestQueryReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth header")
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: "bullish. SCORE: 0.6"}}},
		})
	}))
	defer srv.Close()

	p := NewPerplexity(zap.NewNop(), "test-key")
	p.endpoint = srv.URL

	content, err := p.Query(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if content != "bullish. SCORE: 0.6" {
		t.Errorf("unexpected content: %q", content)
	}
}

func TestQueryFailsFastWithoutAPIKey(t *testing.T) {
	p := NewPerplexity(zap.NewNop(), "")
	if _, err := p.Query(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error with no API key configured")
	}
}

func TestQueryFailsOnNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewPerplexity(zap.NewNop(), "test-key")
	p.endpoint = srv.URL

	if _, err := p.Query(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
