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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/payload"
)

var tracer = otel.Tracer("leadscorer/model")

// geminiRequest mirrors the generative-model adapter's request contract
// (spec.md 6): contents, generationConfig, safetySettings, systemInstruction.
type geminiRequest struct {
	Contents          []geminiContent     `json:"contents"`
	SystemInstruction *geminiContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig     `json:"generationConfig"`
	SafetySettings    []geminiSafety      `json:"safetySettings"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	ResponseMIMEType string `json:"responseMimeType"`
}

type geminiSafety struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

var allSafetyCategoriesBlockNone = []geminiSafety{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason  string `json:"finishReason"`
		SafetyRatings []struct {
			Category    string `json:"category"`
			Probability string `json:"probability"`
		} `json:"safetyRatings"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GeminiStyleClient invokes a Gemini-compatible generateContent endpoint.
// Grounded on ai/providers/gemini/client.go's request shape, fence-
// stripping, candidate/safety handling, and token-usage reporting, here
// narrowed to this spec's {systemPrompt, leadId, posts} -> {results,
// tokenUsage} contract.
type GeminiStyleClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	cfg        *Config
}

// NewGeminiStyleClient builds a client targeting baseURL (e.g.
// "https://generativelanguage.googleapis.com/v1beta") with model as the
// addressed model id.
func NewGeminiStyleClient(baseURL, apiKey, modelID string, opts ...Option) *GeminiStyleClient {
	cfg := buildConfig(opts...)
	return &GeminiStyleClient{
		httpClient: &http.Client{Timeout: cfg.Timeout + 5*time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      modelID,
		cfg:        cfg,
	}
}

// Score implements Client (spec.md 4.6).
func (c *GeminiStyleClient) Score(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "model.Score", trace.WithAttributes(
		attribute.String("leadId", req.LeadID),
		attribute.Int("postCount", len(req.Posts)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	userMessage := buildUserMessage(req)

	body := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: userMessage}}}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}},
		GenerationConfig: geminiGenConfig{
			Temperature:      c.cfg.Temperature,
			MaxOutputTokens:  c.cfg.MaxOutputTokens,
			ResponseMIMEType: "application/json",
		},
		SafetySettings: allSafetyCategoriesBlockNone,
	}

	raw, err := c.invoke(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, &ScoringError{Err: core.ErrModelTimeout, Timestamp: time.Now().UTC()}
		}
		return Response{}, &ScoringError{Err: err, Timestamp: time.Now().UTC()}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Response{}, &ScoringError{Err: fmt.Errorf("decode response: %w", err), RawSnippet: truncateSnippet(string(raw)), Timestamp: time.Now().UTC()}
	}

	if len(parsed.Candidates) == 0 {
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			return Response{}, &ScoringError{Err: core.ErrSafetyBlocked, FinishReason: parsed.PromptFeedback.BlockReason, RawSnippet: truncateSnippet(string(raw)), Timestamp: time.Now().UTC()}
		}
		return Response{}, &ScoringError{Err: core.ErrEmptyCandidates, RawSnippet: truncateSnippet(string(raw)), Timestamp: time.Now().UTC()}
	}

	candidate := parsed.Candidates[0]
	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}
	cleanText := stripCodeFences(text.String())

	results, err := normaliseResults(cleanText)
	if err != nil {
		return Response{}, &ScoringError{
			Err:           err,
			FinishReason:  candidate.FinishReason,
			SafetyRatings: safetyRatingsString(candidate.SafetyRatings),
			RawSnippet:    truncateSnippet(cleanText),
			Timestamp:     time.Now().UTC(),
		}
	}

	return Response{
		Results: results,
		TokenUsage: TokenUsage{
			Prompt:     parsed.UsageMetadata.PromptTokenCount,
			Completion: parsed.UsageMetadata.CandidatesTokenCount,
			Total:      parsed.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

func (c *GeminiStyleClient) invoke(ctx context.Context, body geminiRequest) ([]byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

// buildUserMessage instructs the model to return only a JSON array of
// {postUrl, postScore, scoringRationale} objects, one per input post
// (spec.md 4.6 step 1).
func buildUserMessage(req Request) string {
	var b strings.Builder
	b.WriteString("Score each of the following posts for lead ")
	b.WriteString(req.LeadID)
	b.WriteString(".\n")
	b.WriteString("Return ONLY a JSON array of objects, one per input post, each shaped exactly as:\n")
	b.WriteString(`{"postUrl": string, "postScore": integer, "scoringRationale": string}` + "\n\n")
	b.WriteString("Posts:\n")
	encoded, _ := json.Marshal(req.Posts)
	b.Write(encoded)
	return b.String()
}

// stripCodeFences removes leading ```/```json and trailing ``` fences.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normaliseResults parses the model's JSON text via the Payload Repair
// pipeline and unwraps the three possible response shapes (spec.md 4.6
// step 5, 9 "three AI response shapes" design note): a bare array, an
// object wrapping a post_analysis array, or an object wrapping a posts
// array.
func normaliseResults(text string) ([]core.AIScore, error) {
	var direct []core.AIScore
	if err := json.Unmarshal([]byte(text), &direct); err == nil {
		return direct, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err == nil {
		for _, key := range []string{"post_analysis", "posts"} {
			if raw, ok := wrapper[key]; ok {
				var results []core.AIScore
				if err := json.Unmarshal(raw, &results); err == nil {
					return results, nil
				}
			}
		}
	}

	repaired := payload.Repair(text)
	if !repaired.Success {
		return nil, core.ErrInvalidAIResponse
	}
	out := make([]core.AIScore, 0, len(repaired.Data))
	for _, p := range repaired.Data {
		out = append(out, core.AIScore{PostURL: p.PostURL})
	}
	if len(out) == 0 {
		return nil, core.ErrInvalidAIResponse
	}
	return out, nil
}

func safetyRatingsString(ratings []struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}) string {
	parts := make([]string, 0, len(ratings))
	for _, r := range ratings {
		parts = append(parts, r.Category+":"+r.Probability)
	}
	return strings.Join(parts, ",")
}

