// Package batch implements the Chunk Runner, Client Runner, and Run
// Orchestrator from spec.md 4.9-4.11: fixed-size sequential batching of
// leads within a client, sequential clients within a run.
package batch

import (
	"context"
	"fmt"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/processor"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
)

// DefaultChunkSize matches spec.md 6's CHUNK_SIZE default.
const DefaultChunkSize = 10

// ChunkRunnerConfig configures RunChunks' diagnostics collection.
type ChunkRunnerConfig struct {
	ChunkSize        int
	VerboseErrors    bool
	MaxVerboseErrors int
	Logger           core.Logger
}

// RunChunks processes leads in fixed-size chunks, sequentially within
// each chunk and across chunks (spec.md 4.9, 5). A panic recovered while
// processing a lead abandons the rest of that chunk: the lead that
// panicked and every lead after it in the chunk are counted as processed
// and as errors, and processing resumes with the next chunk; it never
// aborts the client.
func RunChunks(ctx context.Context, proc *processor.Processor, h tenant.Handle, table string, leads []core.Lead, systemPrompt string, cfg ChunkRunnerConfig) *core.ChunkResult {
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MaxVerboseErrors <= 0 {
		cfg.MaxVerboseErrors = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	result := core.NewChunkResult()
	seen := map[string]bool{}

	for start := 0; start < len(leads); start += cfg.ChunkSize {
		end := start + cfg.ChunkSize
		if end > len(leads) {
			end = len(leads)
		}
		chunkIndex := start / cfg.ChunkSize
		processChunk(ctx, proc, h, table, leads[start:end], systemPrompt, chunkIndex, cfg, logger, result, seen)
	}

	return result
}

func processChunk(ctx context.Context, proc *processor.Processor, h tenant.Handle, table string, chunk []core.Lead, systemPrompt string, chunkIndex int, cfg ChunkRunnerConfig, logger core.Logger, result *core.ChunkResult, seen map[string]bool) {
	done := 0
	defer func() {
		if r := recover(); r != nil {
			remaining := len(chunk) - done
			result.Errors += remaining
			result.Processed += remaining
			logger.Error("chunk processing panicked", map[string]interface{}{
				"operation": "batch.RunChunks", "chunkIndex": chunkIndex, "panic": fmt.Sprintf("%v", r),
			})
		}
	}()

	for _, lead := range chunk {
		select {
		case <-ctx.Done():
			result.Processed++
			result.Errors++
			result.ErrorReasonCounts["CANCELLED"]++
			done++
			continue
		default:
		}

		outcome := proc.Process(ctx, h, table, lead, systemPrompt)
		result.Processed++
		done++

		switch outcome.Status {
		case processor.StatusSuccess:
			result.Scored++
		case processor.StatusSkipped:
			result.Skipped++
			result.SkipCounts[outcome.Reason]++
		case processor.StatusError:
			result.Errors++
			result.ErrorReasonCounts[outcome.Reason]++
			recordErrorSample(result, seen, outcome, cfg.VerboseErrors, cfg.MaxVerboseErrors)
		}
		result.TotalTokens += outcome.TokenUsage.Total
	}
}

// recordErrorSample appends a deduplicated diagnostic sample, keyed by
// reason:category:reason, capped at MaxVerboseErrors (spec.md 4.9).
// processor.Outcome carries no error message, so the message text is not
// part of the key: two errors with the same reason and category share
// one sample even when their messages differ.
func recordErrorSample(result *core.ChunkResult, seen map[string]bool, outcome processor.Outcome, verboseErrors bool, maxVerboseErrors int) {
	if !verboseErrors {
		return
	}
	key := fmt.Sprintf("%s:%s:%s", outcome.Reason, outcome.Category, outcome.Reason)
	if seen[key] {
		return
	}
	if len(result.ErrorDetails) >= maxVerboseErrors {
		return
	}
	seen[key] = true
	result.ErrorDetails = append(result.ErrorDetails, key)
}
