package batch

import (
	"context"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/identity"
	"github.com/PartnerPiloting/leadscorer/internal/model"
	"github.com/PartnerPiloting/leadscorer/internal/processor"
	"github.com/PartnerPiloting/leadscorer/internal/rubric"
	"github.com/PartnerPiloting/leadscorer/internal/stacktrace"
	"github.com/PartnerPiloting/leadscorer/internal/telemetry"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
	"github.com/PartnerPiloting/leadscorer/internal/tracking"
)

// ClientRunnerConfig bundles the collaborators and tuning knobs one
// Client Runner invocation needs.
type ClientRunnerConfig struct {
	Store            tenant.Store
	Registry         tenant.Registry
	ModelClient      model.Client
	StackStore       stacktrace.Store
	Classifier       *processor.LLMClassifier
	Tracking         tracking.Store
	Identity         *identity.Service
	Telemetry        core.Telemetry
	ChunkSize        int
	VerboseErrors    bool
	MaxVerboseErrors int
	SelectorOpts     tenant.SelectorOptions
	Logger           core.Logger
}

const jobTypeLeadScoring = "lead_scoring"

// RunClient implements spec.md 4.10's nine-step sequence for one client.
func RunClient(ctx context.Context, runID core.RunId, client core.Client, cfg ClientRunnerConfig) core.ClientResult {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	result := core.ClientResult{ClientID: client.ClientID, ChunkResult: *core.NewChunkResult()}

	// Step 1: resolve the tenant's datastore handle; fatal if unavailable.
	h, err := cfg.Store.Open(ctx, client.ClientID)
	if err != nil {
		result.Status = "failed"
		logger.Error("client datastore unreachable", map[string]interface{}{
			"operation": "batch.RunClient", "clientId": client.ClientID, "error": err.Error(),
		})
		return result
	}

	// Step 3: probe the optional skipReason field once; its presence is
	// re-checked per write by the tolerant-update retry, but probing once
	// up front lets the Client Runner log a single warning rather than one
	// per lead when a tenant's schema omits it.
	if has, err := cfg.Store.HasField(ctx, h, tenant.TableLeads, tenant.FieldSkipReason); err == nil && !has {
		logger.Warn("tenant schema omits optional skip-reason field", map[string]interface{}{
			"operation": "batch.RunClient", "clientId": client.ClientID,
		})
	}

	// Step 4: best-effort RUNNING sentinel.
	if cfg.Registry != nil {
		if err := cfg.Registry.SetJobStatus(ctx, client.ClientID, jobTypeLeadScoring, "RUNNING", string(runID)); err != nil {
			logger.Warn("failed to set RUNNING job status", map[string]interface{}{
				"operation": "batch.RunClient", "clientId": client.ClientID, "error": err.Error(),
			})
		}
	}

	// Step 5: run the Lead Selector.
	selectCtx, selectSpan := telemetry.StartStoreSpan(ctx, cfg.Telemetry, telemetry.SpanStoreSelect, tenant.TableLeads)
	leads, err := tenant.Select(selectCtx, cfg.Store, h, 0, cfg.SelectorOpts, logger)
	if err != nil {
		selectSpan.RecordError(err)
		selectSpan.End()
		result.Status = "failed"
		logger.Error("lead selection failed", map[string]interface{}{
			"operation": "batch.RunClient", "clientId": client.ClientID, "error": err.Error(),
		})
		return result
	}
	selectSpan.End()

	// Step 6: build the rubric once; cache the prompt for this client's
	// batch. Failure here does not fail the client - the Lead Processor
	// falls back to a per-lead rebuild attempt as a degraded path when
	// handed an empty prompt.
	systemPrompt := ""
	loader := rubric.NewLoader(cfg.Store, logger)
	if r, loadErr := loader.Load(ctx, h); loadErr != nil {
		logger.Warn("rubric build failed, falling back to per-lead rebuild", map[string]interface{}{
			"operation": "batch.RunClient", "clientId": client.ClientID, "error": loadErr.Error(),
		})
	} else {
		systemPrompt = rubric.Build(r, logger)
	}

	// Step 7: run the Chunk Runner over the candidate list.
	proc := processor.New(cfg.Store, cfg.ModelClient, cfg.StackStore, cfg.Classifier, logger).WithTelemetry(cfg.Telemetry)
	chunkResult := RunChunks(ctx, proc, h, tenant.TableLeads, leads, systemPrompt, ChunkRunnerConfig{
		ChunkSize:        cfg.ChunkSize,
		VerboseErrors:    cfg.VerboseErrors,
		MaxVerboseErrors: cfg.MaxVerboseErrors,
		Logger:           logger,
	})
	result.ChunkResult = *chunkResult
	telemetry.RecordChunkResult(cfg.Telemetry, client.ClientID, chunkResult)

	// Step 8: compose the ClientRunId and write metrics to the tracking
	// store. Any failure here is logged, not fatal.
	if cfg.Identity != nil && cfg.Tracking != nil {
		clientRunID, composeErr := cfg.Identity.GetOrCreateFor(runID, client.ClientID, false)
		if composeErr != nil {
			logger.Warn("failed to compose client run id", map[string]interface{}{
				"operation": "batch.RunClient", "clientId": client.ClientID, "error": composeErr.Error(),
			})
		} else {
			update := tracking.RunRecordUpdate{
				PostsExamined:     chunkResult.Processed,
				PostsScored:       chunkResult.Scored,
				PostScoringTokens: chunkResult.TotalTokens,
				Errors:            chunkResult.Errors,
				ErrorDetails:      chunkResult.ErrorDetails,
				LeadsSkipped:      chunkResult.Skipped,
			}
			if err := cfg.Tracking.UpdateRunRecord(ctx, clientRunID, client.ClientID, update, true); err != nil {
				logger.Warn("failed to write client metrics", map[string]interface{}{
					"operation": "batch.RunClient", "clientId": client.ClientID, "error": err.Error(),
				})
			}

			// Step 9: completion helper with validated runId/clientId;
			// update the aggregate run record with last-client progress
			// happens in the orchestrator, which owns the aggregate. The
			// metrics were merged in step 8 and the store merges additively,
			// so only the terminal status is passed here.
			final := tracking.RunRecordUpdate{Status: statusForChunk(chunkResult)}
			if err := cfg.Tracking.CompleteClientProcessing(ctx, clientRunID, client.ClientID, final, tracking.CompletionOptions{CreateIfMissing: true}); err != nil {
				logger.Warn("failed to complete client processing", map[string]interface{}{
					"operation": "batch.RunClient", "clientId": client.ClientID, "error": err.Error(),
				})
			}
		}
	}

	result.Status = statusForChunk(chunkResult)
	return result
}

// statusForChunk maps spec.md 4.10's status rule: success iff errors = 0,
// else completed_with_errors. Catastrophic failure ("failed") is set by
// RunClient directly at the step-1/step-5 fatal points.
func statusForChunk(r *core.ChunkResult) string {
	if r.Errors == 0 {
		return "success"
	}
	return "completed_with_errors"
}
