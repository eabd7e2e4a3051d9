// Command leadscorer runs one batch post-scoring pass across every
// active tenant client, writing relevance scores back to each client's
// own datastore and run metrics to the shared tracking store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/batch"
	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/identity"
	"github.com/PartnerPiloting/leadscorer/internal/model"
	"github.com/PartnerPiloting/leadscorer/internal/processor"
	"github.com/PartnerPiloting/leadscorer/internal/stacktrace"
	"github.com/PartnerPiloting/leadscorer/internal/telemetry"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
	"github.com/PartnerPiloting/leadscorer/internal/tracking"
)

func main() {
	var (
		clientID     = flag.String("client", "", "process only this client id")
		forceRescore = flag.Bool("force-rescore", false, "ignore dateScored and rescore every selectable lead")
		runID        = flag.String("run-id", "", "reuse an existing run id instead of generating one")
		otelEndpoint = flag.String("otel-endpoint", "", "OTLP/HTTP collector endpoint (host:port); telemetry disabled when unset")
		configFile   = flag.String("config", "", "optional YAML file of config defaults, overridden by LEADSCORER_* env vars")
	)
	flag.Parse()

	var opts []core.Option
	if *configFile != "" {
		fileOpts, err := core.LoadFileOptions(*configFile)
		if err != nil {
			log.Fatalf("config file: %v", err)
		}
		opts = append(opts, fileOpts...)
	}
	// The file-seeded Options above are overridden below only by
	// LEADSCORER_* env vars that are set. Chunk size and model timeout are
	// overridden one by one. The verbose settings are overridden as a
	// group: if any of LEADSCORER_VERBOSE, LEADSCORER_VERBOSE_ERRORS or
	// LEADSCORER_MAX_VERBOSE_ERRORS is set, all three come from the
	// environment and an unset one takes its env default. Likewise, if any
	// of LEADSCORER_MODEL_ID, _PROJECT or _LOCATION is non-empty, all three
	// model settings come from the environment, unset ones as "".
	if _, ok := os.LookupEnv("LEADSCORER_CHUNK_SIZE"); ok {
		opts = append(opts, core.WithChunkSize(envInt("LEADSCORER_CHUNK_SIZE", 10)))
	}
	if _, ok := os.LookupEnv("LEADSCORER_MODEL_TIMEOUT"); ok {
		opts = append(opts, core.WithModelTimeout(envDuration("LEADSCORER_MODEL_TIMEOUT", 120*time.Second)))
	}
	_, verboseSet := os.LookupEnv("LEADSCORER_VERBOSE")
	_, verboseErrorsSet := os.LookupEnv("LEADSCORER_VERBOSE_ERRORS")
	_, maxVerboseSet := os.LookupEnv("LEADSCORER_MAX_VERBOSE_ERRORS")
	if verboseSet || verboseErrorsSet || maxVerboseSet {
		opts = append(opts, core.WithVerbose(envBool("LEADSCORER_VERBOSE"), envBool("LEADSCORER_VERBOSE_ERRORS"), envInt("LEADSCORER_MAX_VERBOSE_ERRORS", 10)))
	}
	if os.Getenv("LEADSCORER_MODEL_ID") != "" || os.Getenv("LEADSCORER_MODEL_PROJECT") != "" || os.Getenv("LEADSCORER_MODEL_LOCATION") != "" {
		opts = append(opts, core.WithModel(os.Getenv("LEADSCORER_MODEL_ID"), os.Getenv("LEADSCORER_MODEL_PROJECT"), os.Getenv("LEADSCORER_MODEL_LOCATION")))
	}
	if v := os.Getenv("LEADSCORER_ADMIN_ALERT_WEBHOOK"); v != "" {
		opts = append(opts, core.WithAdminAlertHook(v))
	}
	opts = append(opts,
		core.WithRedisURLs(
			envOr("LEADSCORER_REGISTRY_REDIS_URL", "redis://localhost:6379/0"),
			envOr("LEADSCORER_TENANT_STORE_REDIS_URL", "redis://localhost:6379/1"),
			envOr("LEADSCORER_TRACKING_REDIS_URL", "redis://localhost:6379/2"),
			envOr("LEADSCORER_STACKTRACE_REDIS_URL", "redis://localhost:6379/3"),
		),
		core.WithLogger(core.NewProductionLogger(os.Stdout, envBool("LEADSCORER_JSON_LOGS"))),
	)
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry, err := tenant.NewRedisRegistry(cfg.RegistryRedisURL, cfg.Logger)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	store, err := tenant.NewRedisStore(cfg.TenantStoreRedisURL, cfg.Logger)
	if err != nil {
		log.Fatalf("tenant store: %v", err)
	}
	trackingStore, err := tracking.NewRedisStore(cfg.TrackingRedisURL, cfg.Logger)
	if err != nil {
		log.Fatalf("tracking store: %v", err)
	}
	stackStore, err := stacktrace.NewRedisStore(cfg.StackTraceRedisURL, 7*24*time.Hour, cfg.Logger)
	if err != nil {
		log.Fatalf("stack-trace store: %v", err)
	}

	apiKey := os.Getenv("LEADSCORER_MODEL_API_KEY")
	if apiKey == "" {
		log.Fatal("LEADSCORER_MODEL_API_KEY must be set")
	}
	modelOpts := []model.Option{
		model.WithTimeout(cfg.ModelTimeout),
		model.WithMaxOutputTokens(cfg.MaxOutputTokens),
		model.WithLogger(cfg.Logger),
	}
	var modelClient model.Client
	switch envOr("LEADSCORER_MODEL_PROVIDER", "gemini") {
	case "openai":
		modelClient = model.NewOpenAIStyleClient(
			envOr("LEADSCORER_MODEL_BASE_URL", "https://api.openai.com/v1"),
			apiKey,
			cfg.ModelID,
			modelOpts...,
		)
	case "gemini":
		modelClient = model.NewGeminiStyleClient(
			envOr("LEADSCORER_MODEL_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			apiKey,
			cfg.ModelID,
			modelOpts...,
		)
	default:
		log.Fatalf("unknown LEADSCORER_MODEL_PROVIDER: %s", os.Getenv("LEADSCORER_MODEL_PROVIDER"))
	}
	classifier := processor.NewLLMClassifier(modelClient, cfg.Logger)

	var tel core.Telemetry = core.NoOpTelemetry{}
	if *otelEndpoint != "" {
		provider, err := telemetry.NewProvider(ctx, "leadscorer", *otelEndpoint)
		if err != nil {
			cfg.Logger.Warn("telemetry disabled", map[string]interface{}{"operation": "main", "error": err.Error()})
		} else {
			tel = provider
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = provider.Shutdown(shutdownCtx)
			}()
		}
	}

	var clientFilter *string
	if *clientID != "" {
		clientFilter = clientID
	}

	orchestratorCfg := batch.OrchestratorConfig{
		Registry:  registry,
		Tracking:  trackingStore,
		Identity:  identity.New(cfg.Logger),
		Telemetry: tel,
		Logger:    cfg.Logger,
		AdminAlertHook: func(_ context.Context, message string) {
			cfg.Logger.Error("admin alert", map[string]interface{}{"operation": "main", "message": message})
		},
		RunnerConfig: batch.ClientRunnerConfig{
			Store:            store,
			Registry:         registry,
			ModelClient:      modelClient,
			StackStore:       stackStore,
			Classifier:       classifier,
			ChunkSize:        cfg.ChunkSize,
			VerboseErrors:    cfg.VerboseErrors,
			MaxVerboseErrors: cfg.MaxVerboseErrors,
			Logger:           cfg.Logger,
		},
	}

	result, err := batch.Run(ctx, core.RunId(*runID), clientFilter, tenant.SelectorOptions{ForceRescore: *forceRescore}, orchestratorCfg)
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	fmt.Printf("run %s status=%s clients=%d processed=%d scored=%d skipped=%d errors=%d duration=%s\n",
		result.RunID, result.Status, len(result.Clients), result.Processed, result.Scored, result.Skipped, result.Errors, result.Duration)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return os.Getenv(key) == "true" || os.Getenv(key) == "1"
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
