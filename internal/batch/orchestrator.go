package batch

import (
	"context"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/identity"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
	"github.com/PartnerPiloting/leadscorer/internal/tracking"
)

// OrchestratorConfig bundles the collaborators a Run Orchestrator
// invocation needs; RunnerConfig supplies everything each Client Runner
// call is built from (Store/ModelClient/etc., minus the per-client
// selector options, which the orchestrator fills in per client).
type OrchestratorConfig struct {
	Registry       tenant.Registry
	Tracking       tracking.Store
	Identity       *identity.Service
	Telemetry      core.Telemetry
	AdminAlertHook func(ctx context.Context, message string)
	Logger         core.Logger
	RunnerConfig   ClientRunnerConfig
}

// Run implements spec.md 4.11: generate or accept a base run id, fetch
// the client list (optionally filtered to one), and process clients
// sequentially, isolating each client's failure into its ClientResult.
// A global failure (registry unreachable) notifies the admin hook and
// is rethrown rather than swallowed.
func Run(ctx context.Context, runID core.RunId, clientFilter *string, selectorOpts tenant.SelectorOptions, cfg OrchestratorConfig) (core.RunResult, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	start := time.Now()

	if runID == "" {
		if cfg.Identity == nil {
			return core.RunResult{}, core.NewFrameworkError("batch.Run", core.KindConfiguration, "", nil)
		}
		runID = cfg.Identity.Generate()
	}

	clients, err := cfg.Registry.ListActiveClients(ctx, clientFilter)
	if err != nil {
		cfg.alertAdmin(ctx, "registry unreachable: "+err.Error())
		return core.RunResult{RunID: runID, Status: "failed"}, core.NewFrameworkError("batch.Run", core.KindUnavailable, string(runID), err)
	}

	if cfg.Tracking != nil {
		if _, err := cfg.Tracking.CreateJobTracking(ctx, runID, tracking.JobOptions{ClientsTotal: len(clients)}); err != nil {
			cfg.alertAdmin(ctx, "tracking store unreachable at job creation: "+err.Error())
			return core.RunResult{RunID: runID, Status: "failed"}, core.NewFrameworkError("batch.Run", core.KindUnavailable, string(runID), err)
		}
	}

	run := core.RunResult{RunID: runID, ChunkResult: *core.NewChunkResult()}

	for i, client := range clients {
		select {
		case <-ctx.Done():
			run.ChunkResult.Errors++
			run.ChunkResult.ErrorReasonCounts["CANCELLED"]++
			run.Status = "completed_with_errors"
			run.Duration = time.Since(start)
			return run, nil
		default:
		}

		runnerCfg := cfg.RunnerConfig
		runnerCfg.SelectorOpts = selectorOpts
		runnerCfg.Registry = cfg.Registry
		runnerCfg.Tracking = cfg.Tracking
		runnerCfg.Identity = cfg.Identity
		runnerCfg.Telemetry = cfg.Telemetry
		runnerCfg.Logger = logger

		clientResult := runClientIsolated(ctx, runID, client, runnerCfg, logger)
		run.Clients = append(run.Clients, clientResult)
		run.ChunkResult.Add(&clientResult.ChunkResult)

		if cfg.Tracking != nil {
			_ = cfg.Tracking.UpdateJob(ctx, runID, map[string]interface{}{
				"clientsDone":  i + 1,
				"lastClientId": client.ClientID,
			})
		}
		if cfg.Registry != nil {
			_ = cfg.Registry.LogExecution(ctx, client.ClientID, map[string]interface{}{
				"runId": string(runID), "status": clientResult.Status, "processed": clientResult.Processed,
			})
		}
	}

	run.Status = runStatus(run.Clients)
	run.Duration = time.Since(start)

	if cfg.Tracking != nil {
		_ = cfg.Tracking.CompleteJob(ctx, runID, run.Status, "")
	}

	return run, nil
}

// runClientIsolated wraps RunClient so a panic in one client's pipeline
// never aborts the run; it records a failed ClientResult and continues
// (spec.md 4.11: "Each client is wrapped in a try/catch").
func runClientIsolated(ctx context.Context, runID core.RunId, client core.Client, cfg ClientRunnerConfig, logger core.Logger) (result core.ClientResult) {
	defer func() {
		if r := recover(); r != nil {
			result = core.ClientResult{ClientID: client.ClientID, Status: "failed", ChunkResult: *core.NewChunkResult()}
			logger.Error("client processing panicked", map[string]interface{}{
				"operation": "batch.Run", "clientId": client.ClientID, "panic": r,
			})
		}
	}()
	return RunClient(ctx, runID, client, cfg)
}

func runStatus(clients []core.ClientResult) string {
	if len(clients) == 0 {
		return "success"
	}
	errored := false
	for _, c := range clients {
		if c.Status != "success" {
			errored = true
			break
		}
	}
	if errored {
		return "completed_with_errors"
	}
	return "success"
}

func (cfg OrchestratorConfig) alertAdmin(ctx context.Context, message string) {
	if cfg.AdminAlertHook != nil {
		cfg.AdminAlertHook(ctx, message)
	}
}
