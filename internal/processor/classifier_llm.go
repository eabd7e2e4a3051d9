package processor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/model"
)

// LLMClassifier is the second-layer classifier from error_analyzer.go's
// two-stage design: Classify's string-matching heuristics handle the
// common cases; when a caught error doesn't match any heuristic
// (Category returned is CategoryUnknown) and an LLM classifier is
// configured, this issues one low-temperature model call asking it to
// pick a category from the enumerated set, so genuinely ambiguous
// provider error text still resolves to something better than UNKNOWN.
type LLMClassifier struct {
	client model.Client
	logger core.Logger
}

// NewLLMClassifier builds a classifier backed by client. A nil client
// disables the LLM-assisted pass; ClassifyWithFallback then returns
// Classify's heuristic result unchanged.
func NewLLMClassifier(client model.Client, logger core.Logger) *LLMClassifier {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &LLMClassifier{client: client, logger: logger}
}

var validCategories = map[Category]bool{
	CategorySafetyBlock: true, CategoryQuota: true, CategoryTimeout: true,
	CategoryAuth: true, CategoryAIResponseFormat: true, CategoryModelConfig: true,
	CategoryUnknown: true,
}

// ClassifyWithFallback runs the heuristic pass first; if it lands on
// CategoryUnknown and an LLM client is configured, it asks the model to
// pick a category instead. Any failure in the LLM pass (timeout, bad
// JSON) falls back to CategoryUnknown rather than propagating — this is
// a diagnostics aid, not a path that may itself fail the lead.
func (c *LLMClassifier) ClassifyWithFallback(ctx context.Context, finishReason, message string) Category {
	heuristic := Classify(finishReason, message)
	if heuristic != CategoryUnknown || c.client == nil {
		return heuristic
	}

	prompt := buildClassificationPrompt(finishReason, message)
	resp, err := c.client.Score(ctx, model.Request{SystemPrompt: prompt, LeadID: "error-classification"})
	if err != nil {
		c.logger.Warn("LLM-assisted error classification failed, leaving UNKNOWN", map[string]interface{}{
			"operation": "processor.ClassifyWithFallback", "error": err.Error(),
		})
		return CategoryUnknown
	}
	if len(resp.Results) == 0 {
		return CategoryUnknown
	}

	var parsed struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(resp.Results[0].ScoringRationale), &parsed); err != nil {
		return CategoryUnknown
	}
	cat := Category(strings.ToUpper(strings.TrimSpace(parsed.Category)))
	if !validCategories[cat] {
		return CategoryUnknown
	}
	return cat
}

func buildClassificationPrompt(finishReason, message string) string {
	var b strings.Builder
	b.WriteString("Classify the following generative-model error into exactly one category from this set: ")
	b.WriteString("SAFETY_BLOCK, QUOTA, TIMEOUT, AUTH, AI_RESPONSE_FORMAT, MODEL_CONFIG, UNKNOWN.\n")
	b.WriteString("Respond with JSON: {\"category\": \"<ONE_OF_THE_ABOVE>\"}.\n\n")
	b.WriteString("finishReason: " + finishReason + "\n")
	b.WriteString("message: " + message + "\n")
	return b.String()
}
