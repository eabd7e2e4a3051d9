package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/model"
	"github.com/PartnerPiloting/leadscorer/internal/payload"
	"github.com/PartnerPiloting/leadscorer/internal/resilience"
	"github.com/PartnerPiloting/leadscorer/internal/rubric"
	"github.com/PartnerPiloting/leadscorer/internal/stacktrace"
	"github.com/PartnerPiloting/leadscorer/internal/telemetry"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
)

// Status is the terminal outcome of processing one lead.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Skip/error reason constants (spec.md 7).
const (
	ReasonNoContent          = "NO_CONTENT"
	ReasonNoPostsParsed      = "NO_POSTS_PARSED"
	ReasonInvalidAIResponse  = "INVALID_AI_RESPONSE"
	ReasonUnparseableJSON    = "Unparseable JSON"
	ReasonInvalidPostsField  = "Invalid Posts Content field"
)

// Outcome is returned by Process for accumulation by the Chunk Runner.
type Outcome struct {
	Status         Status
	Reason         string
	Category       Category
	RelevanceScore int
	TokenUsage     model.TokenUsage
}

// Processor runs the Lead Processor steps from spec.md 4.8 for one lead
// at a time.
type Processor struct {
	store       tenant.Store
	modelClient model.Client
	stackStore  stacktrace.Store
	classifier  *LLMClassifier
	logger      core.Logger
	telemetry   core.Telemetry
	breaker     *resilience.CircuitBreaker
	retryConfig *resilience.RetryConfig
	now         func() time.Time
}

// New builds a Processor. stackStore may be nil to disable stack-trace
// archival; classifier may be nil to disable the LLM-assisted pass. The
// model invocation is guarded by a dedicated circuit breaker so one
// client's run of provider errors degrades gracefully instead of
// burning the retry budget on a provider known to be down.
func New(store tenant.Store, modelClient model.Client, stackStore stacktrace.Store, classifier *LLMClassifier, logger core.Logger) *Processor {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	breakerCfg := resilience.DefaultConfig()
	breakerCfg.Name = "model-score"
	breakerCfg.Logger = logger
	return &Processor{
		store: store, modelClient: modelClient, stackStore: stackStore, classifier: classifier,
		logger: logger, telemetry: core.NoOpTelemetry{},
		breaker: resilience.New(breakerCfg), retryConfig: resilience.DefaultRetryConfig(),
		now: time.Now,
	}
}

// WithTelemetry attaches a Telemetry provider so model invocations and
// store writes are traced. Optional; a Processor without one no-ops.
func (p *Processor) WithTelemetry(t core.Telemetry) *Processor {
	if t != nil {
		p.telemetry = t
	}
	return p
}

// Process runs the full pipeline for one lead against the cached
// systemPrompt built by the Client Runner.
func (p *Processor) Process(ctx context.Context, h tenant.Handle, table string, lead core.Lead, systemPrompt string) Outcome {
	// Step 1: fetch payload.
	if !hasUsableContent(lead.PostsContent) {
		p.writeBack(ctx, h, table, lead.ID, map[string]interface{}{
			tenant.FieldDateScored: p.now().UTC(),
			tenant.FieldSkipReason: ReasonNoContent,
		})
		return Outcome{Status: StatusSkipped, Reason: ReasonNoContent}
	}

	// Step 2: repair/parse.
	posts, jsonStatus, failOutcome := p.repairPayload(ctx, h, table, lead)
	if failOutcome != nil {
		return *failOutcome
	}
	if len(posts) == 0 {
		p.writeBack(ctx, h, table, lead.ID, map[string]interface{}{
			tenant.FieldDateScored: p.now().UTC(),
			tenant.FieldSkipReason: ReasonNoPostsParsed,
		})
		return Outcome{Status: StatusSkipped, Reason: ReasonNoPostsParsed}
	}
	_ = jsonStatus

	// An empty systemPrompt means the Client Runner's rubric build failed;
	// rebuild it for this lead as a degraded path.
	if systemPrompt == "" {
		if r, loadErr := rubric.NewLoader(p.store, p.logger).Load(ctx, h); loadErr == nil {
			systemPrompt = rubric.Build(r, p.logger)
		}
	}

	// Step 3: score, guarded by the model circuit breaker and retried
	// with backoff (spec.md 4.8's model-invocation suspension point).
	spanCtx, span, requestID := telemetry.StartModelSpan(ctx, p.telemetry, h.ClientID)
	var resp model.Response
	err := resilience.RetryWithCircuitBreaker(spanCtx, p.retryConfig, p.breaker, func() error {
		var scoreErr error
		resp, scoreErr = p.modelClient.Score(spanCtx, model.Request{SystemPrompt: systemPrompt, LeadID: lead.ID, Posts: posts})
		return scoreErr
	})
	if err != nil {
		span.RecordError(err)
		span.End()
		return p.handleScoringError(ctx, h, table, lead, requestID, err)
	}
	span.End()

	// Step 4-5: merge + repost detection.
	enriched := mergeScores(resp.Results, posts, lead.LinkedInURL)

	// Step 6: pick winner.
	winner, ok := pickWinner(enriched)
	if !ok {
		// Open Question 1 (DESIGN.md): INVALID_AI_RESPONSE still marks
		// dateScored so the lead is not re-selected next run.
		p.writeBack(ctx, h, table, lead.ID, map[string]interface{}{
			tenant.FieldDateScored: p.now().UTC(),
			tenant.FieldSkipReason: ReasonInvalidAIResponse,
		})
		return Outcome{Status: StatusSkipped, Reason: ReasonInvalidAIResponse, Category: CategoryAIResponseFormat}
	}

	// Step 7: write back.
	fields := map[string]interface{}{
		tenant.FieldRelevanceScore: winner.PostScore,
		tenant.FieldAIEvaluation:   formatAIEvaluation(enriched),
		tenant.FieldTopScoringPost: formatTopScoringPost(winner),
		tenant.FieldDateScored:     p.now().UTC(),
		tenant.FieldSkipReason:     "",
	}
	if err := p.tolerantUpdate(ctx, h, table, lead.ID, fields); err != nil {
		// Open Question 3 (DESIGN.md): a score computed but not durably
		// written back is reported as an error, not a success, so the
		// scored+skipped+errors==processed invariant holds.
		p.logger.Error("write-back failed after successful scoring", map[string]interface{}{
			"operation": "processor.Process", "leadId": lead.ID, "error": err.Error(),
		})
		return Outcome{Status: StatusError, Reason: "write-back failed", Category: CategoryUnknown, TokenUsage: resp.TokenUsage}
	}

	return Outcome{Status: StatusSuccess, RelevanceScore: winner.PostScore, TokenUsage: resp.TokenUsage}
}

func hasUsableContent(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return len(trimSpaceLen(t)) > 0
	case []interface{}:
		return len(t) > 0
	case []core.Post:
		return len(t) > 0
	default:
		return false
	}
}

func trimSpaceLen(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			out = append(out, r)
		}
	}
	return string(out)
}

// repairPayload runs Payload Repair on a string payload (or passes an
// already-decoded array through), writing the terminal error outcome
// itself on unrecoverable failure per spec.md 4.8 step 2 / S3.
func (p *Processor) repairPayload(ctx context.Context, h tenant.Handle, table string, lead core.Lead) ([]core.Post, string, *Outcome) {
	switch lead.PostsContent.(type) {
	case []core.Post, []interface{}:
		posts, _ := toPostSlice(lead.PostsContent)
		return posts, "Parsed", nil
	}

	result := payload.Repair(lead.PostsContent)
	if !result.Success {
		diagnostic := ""
		if s, ok := lead.PostsContent.(string); ok {
			diagnostic = string(payload.Analyse(s))
		}
		p.writeBack(ctx, h, table, lead.ID, map[string]interface{}{
			tenant.FieldRelevanceScore:   0,
			tenant.FieldAIEvaluation:     formatJSONParseError(result.Err.Error(), diagnostic),
			tenant.FieldDateScored:       p.now().UTC(),
			tenant.FieldPostsJSONStatus: "Failed",
		})
		return nil, "Failed", &Outcome{Status: StatusError, Reason: ReasonUnparseableJSON}
	}
	return result.Data, "Parsed", nil
}

func toPostSlice(v interface{}) ([]core.Post, bool) {
	switch t := v.(type) {
	case []core.Post:
		return t, true
	case []interface{}:
		out := make([]core.Post, 0, len(t))
		for _, item := range t {
			if p, ok := item.(core.Post); ok {
				out = append(out, p)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// handleScoringError classifies a model invocation failure and writes a
// terminal error outcome for the lead (spec.md 4.8 error classification
// table, S5).
func (p *Processor) handleScoringError(ctx context.Context, h tenant.Handle, table string, lead core.Lead, requestID string, err error) Outcome {
	var finishReason, rawSnippet string
	var se *model.ScoringError
	if errors.As(err, &se) {
		finishReason = se.FinishReason
		rawSnippet = se.RawSnippet
	}

	var category Category
	if p.classifier != nil {
		category = p.classifier.ClassifyWithFallback(ctx, finishReason, err.Error())
	} else {
		category = Classify(finishReason, err.Error())
	}

	archivedAt := p.archiveStackTrace(ctx, h.ClientID, lead.ID, requestID, err)

	evaluation := fmt.Sprintf("AI_SCORING_ERROR:%s timestamp=%s %s", category, p.now().UTC().Format(time.RFC3339Nano), rawSnippet)
	p.writeBack(ctx, h, table, lead.ID, map[string]interface{}{
		tenant.FieldAIEvaluation: evaluation,
		tenant.FieldDateScored:   p.now().UTC(),
	})

	p.logger.Error("AI scoring failed", map[string]interface{}{
		"operation": "processor.handleScoringError", "leadId": lead.ID, "category": string(category), "error": err.Error(), "stackArchivedAt": archivedAt,
	})

	return Outcome{Status: StatusError, Reason: "AI_SCORING_ERROR", Category: category}
}

func (p *Processor) archiveStackTrace(ctx context.Context, clientID, leadID, requestID string, err error) string {
	if p.stackStore == nil {
		return ""
	}
	ts := p.now().UTC().Format("2006-01-02T15:04:05.000000000Z")
	spanCtx, span := p.telemetry.StartSpan(ctx, telemetry.SpanStackTraceRecord)
	defer span.End()
	if archiveErr := p.stackStore.Save(spanCtx, stacktrace.Record{
		Timestamp:    ts,
		ClientID:     clientID,
		LeadID:       leadID,
		RequestID:    requestID,
		ErrorMessage: err.Error(),
		StackTrace:   fmt.Sprintf("%+v", err),
	}); archiveErr != nil {
		span.RecordError(archiveErr)
		p.logger.Warn("stack trace archival failed", map[string]interface{}{"operation": "processor.archiveStackTrace", "error": archiveErr.Error()})
		return ""
	}
	return ts
}

// tolerantUpdate applies Update and, on an "unknown field name" error for
// skipReason, retries once after dropping only that field (spec.md 4.8
// step 8, Property 6, S7).
func (p *Processor) tolerantUpdate(ctx context.Context, h tenant.Handle, table, id string, fields map[string]interface{}) error {
	spanCtx, span := telemetry.StartStoreSpan(ctx, p.telemetry, telemetry.SpanStoreUpdate, table)
	_, err := p.store.Update(spanCtx, h, table, id, fields)
	if err == nil {
		span.End()
		return nil
	}
	unknown, ok := err.(*tenant.UpdateUnknownField)
	if !ok || unknown.Field != tenant.FieldSkipReason {
		span.RecordError(err)
		span.End()
		return err
	}
	span.End()
	retryFields := map[string]interface{}{}
	for k, v := range fields {
		if k == tenant.FieldSkipReason {
			continue
		}
		retryFields[k] = v
	}
	spanCtx2, retrySpan := telemetry.StartStoreSpan(ctx, p.telemetry, telemetry.SpanStoreUpdate, table)
	_, err2 := p.store.Update(spanCtx2, h, table, id, retryFields)
	if err2 != nil {
		retrySpan.RecordError(err2)
	}
	retrySpan.End()
	return err2
}

func (p *Processor) writeBack(ctx context.Context, h tenant.Handle, table, id string, fields map[string]interface{}) {
	if err := p.tolerantUpdate(ctx, h, table, id, fields); err != nil {
		p.logger.Error("write-back failed", map[string]interface{}{"operation": "processor.writeBack", "leadId": id, "error": err.Error()})
	}
}
