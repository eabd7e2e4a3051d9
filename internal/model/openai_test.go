package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

func TestOpenAIStyleClientScoreHappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected Authorization header: %q", got)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}
		resp := openAIResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		}{{
			Message: struct {
				Content string `json:"content"`
			}{Content: `[{"postUrl":"https://x/1","postScore":80,"scoringRationale":"strong signal"}]`},
			FinishReason: "stop",
		}}
		resp.Usage.PromptTokens = 100
		resp.Usage.CompletionTokens = 20
		resp.Usage.TotalTokens = 120
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewOpenAIStyleClient(server.URL, "test-key", "gpt-4o-mini")
	resp, err := c.Score(context.Background(), Request{
		SystemPrompt: "score these",
		LeadID:       "lead-1",
		Posts:        []core.Post{{PostURL: "https://x/1", PostContent: "hello"}},
	})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].PostScore != 80 {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if resp.TokenUsage.Total != 120 {
		t.Fatalf("unexpected token usage: %+v", resp.TokenUsage)
	}
}

func TestOpenAIStyleClientScoreModelError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIResponse{}
		resp.Error = &struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}{Message: "rate limited", Type: "rate_limit_error"}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewOpenAIStyleClient(server.URL, "test-key", "gpt-4o-mini")
	_, err := c.Score(context.Background(), Request{SystemPrompt: "x", LeadID: "lead-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	var se *ScoringError
	if !asScoringError(err, &se) {
		t.Fatalf("expected *ScoringError, got %T: %v", err, err)
	}
}

func TestOpenAIStyleClientScoreTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(openAIResponse{})
	}))
	defer server.Close()

	c := NewOpenAIStyleClient(server.URL, "test-key", "gpt-4o-mini", WithTimeout(30*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	_, err := c.Score(ctx, Request{SystemPrompt: "x", LeadID: "lead-1"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var se *ScoringError
	if !asScoringError(err, &se) {
		t.Fatalf("expected *ScoringError, got %T: %v", err, err)
	}
	if se.Err != core.ErrModelTimeout {
		t.Fatalf("expected ErrModelTimeout, got %v", se.Err)
	}
}

func asScoringError(err error, target **ScoringError) bool {
	if se, ok := err.(*ScoringError); ok {
		*target = se
		return true
	}
	return false
}
