package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// openAIRequest mirrors the OpenAI-style chat completions contract: a
// messages array (system + user) plus the generation knobs this spec
// needs (spec.md 6).
type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat *openAIRespFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRespFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIStyleClient invokes an OpenAI-compatible chat completions
// endpoint. Grounded on ai/providers/openai/client.go's message-array
// construction and token-usage extraction, here narrowed to this spec's
// {systemPrompt, leadId, posts} -> {results, tokenUsage} contract; the
// teacher's reasoning-model request branching (max_completion_tokens,
// omitted temperature) is not ported since every model this spec
// addresses accepts the standard chat-completions parameter set.
type OpenAIStyleClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	cfg        *Config
}

// NewOpenAIStyleClient builds a client targeting baseURL (e.g.
// "https://api.openai.com/v1") with model as the addressed model id.
func NewOpenAIStyleClient(baseURL, apiKey, modelID string, opts ...Option) *OpenAIStyleClient {
	cfg := buildConfig(opts...)
	return &OpenAIStyleClient{
		httpClient: &http.Client{Timeout: cfg.Timeout + 5*time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      modelID,
		cfg:        cfg,
	}
}

// Score implements Client (spec.md 4.6).
func (c *OpenAIStyleClient) Score(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "model.Score", trace.WithAttributes(
		attribute.String("leadId", req.LeadID),
		attribute.Int("postCount", len(req.Posts)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: buildUserMessage(req)},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxOutputTokens,
		ResponseFormat: &openAIRespFormat{Type: "json_object"},
	}

	raw, err := c.invoke(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, &ScoringError{Err: core.ErrModelTimeout, Timestamp: time.Now().UTC()}
		}
		return Response{}, &ScoringError{Err: err, Timestamp: time.Now().UTC()}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &ScoringError{Err: fmt.Errorf("decode response: %w", err), RawSnippet: truncateSnippet(string(raw)), Timestamp: time.Now().UTC()}
	}

	if parsed.Error != nil {
		return Response{}, &ScoringError{Err: fmt.Errorf("model error: %s", parsed.Error.Message), RawSnippet: truncateSnippet(string(raw)), Timestamp: time.Now().UTC()}
	}

	if len(parsed.Choices) == 0 {
		return Response{}, &ScoringError{Err: core.ErrEmptyCandidates, RawSnippet: truncateSnippet(string(raw)), Timestamp: time.Now().UTC()}
	}

	choice := parsed.Choices[0]
	cleanText := stripCodeFences(choice.Message.Content)

	results, err := normaliseResults(cleanText)
	if err != nil {
		return Response{}, &ScoringError{
			Err:          err,
			FinishReason: choice.FinishReason,
			RawSnippet:   truncateSnippet(cleanText),
			Timestamp:    time.Now().UTC(),
		}
	}

	return Response{
		Results: results,
		TokenUsage: TokenUsage{
			Prompt:     parsed.Usage.PromptTokens,
			Completion: parsed.Usage.CompletionTokens,
			Total:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func (c *OpenAIStyleClient) invoke(ctx context.Context, body openAIRequest) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned status %d: %s", resp.StatusCode, truncateSnippet(string(raw)))
	}
	return raw, nil
}
