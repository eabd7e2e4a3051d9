// Package tracking implements the Tracking Store adapter contract
// (spec.md 6): per-run and per-client progress/metrics records, written
// best-effort by the batch runners and never treated as fatal except at
// job creation.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// JobOptions seeds a new run's tracking record.
type JobOptions struct {
	ClientsTotal int
}

// RunRecordUpdate is a partial update applied to a ClientRunRecord; zero
// fields are left untouched except where noted.
type RunRecordUpdate struct {
	PostsExamined     int
	PostsScored       int
	PostScoringTokens int
	Errors            int
	ErrorDetails      []string
	LeadsSkipped      int
	Status            string
}

// CompletionOptions parameterizes completeClientProcessing.
type CompletionOptions struct {
	CreateIfMissing bool
}

// Store is the Tracking Store adapter contract.
type Store interface {
	CreateJobTracking(ctx context.Context, runID core.RunId, opts JobOptions) (core.RunTrackingRecord, error)
	UpdateJob(ctx context.Context, runID core.RunId, updates map[string]interface{}) error
	CompleteJob(ctx context.Context, runID core.RunId, status, notes string) error
	UpdateRunRecord(ctx context.Context, clientRunID core.ClientRunId, clientID string, updates RunRecordUpdate, createIfMissing bool) error
	CompleteClientProcessing(ctx context.Context, runID core.ClientRunId, clientID string, final RunRecordUpdate, opts CompletionOptions) error
}

// RedisStore is the default Store implementation: one JSON blob per run
// and one per client-run, under the shared "leadscorer" namespace.
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisStore parses redisURL and pings it.
func NewRedisStore(redisURL string, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewFrameworkError("tracking.NewRedisStore", core.KindConfiguration, redisURL, err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("tracking.NewRedisStore", core.KindUnavailable, redisURL, err)
	}
	return &RedisStore{client: client, namespace: "leadscorer", logger: logger}, nil
}

func (s *RedisStore) runKey(runID core.RunId) string {
	return fmt.Sprintf("%s:runs:%s", s.namespace, runID)
}
func (s *RedisStore) clientRunKey(clientRunID core.ClientRunId) string {
	return fmt.Sprintf("%s:clientruns:%s", s.namespace, clientRunID)
}

// CreateJobTracking writes the initial run record. Failure here is
// treated as a global failure by the Run Orchestrator (spec.md 7).
func (s *RedisStore) CreateJobTracking(ctx context.Context, runID core.RunId, opts JobOptions) (core.RunTrackingRecord, error) {
	rec := core.RunTrackingRecord{
		RunID:        runID,
		Status:       "RUNNING",
		StartedAt:    time.Now().UTC(),
		ClientsTotal: opts.ClientsTotal,
		SkipReasons:  map[string]int{},
		ErrorReasons: map[string]int{},
	}
	if err := s.putRun(ctx, rec); err != nil {
		return core.RunTrackingRecord{}, core.NewFrameworkError("tracking.CreateJobTracking", core.KindUnavailable, string(runID), err)
	}
	return rec, nil
}

func (s *RedisStore) getRun(ctx context.Context, runID core.RunId) (core.RunTrackingRecord, error) {
	data, err := s.client.Get(ctx, s.runKey(runID)).Result()
	if err == redis.Nil {
		return core.RunTrackingRecord{}, core.NewFrameworkError("tracking.getRun", core.KindNotFound, string(runID), nil)
	}
	if err != nil {
		return core.RunTrackingRecord{}, err
	}
	var rec core.RunTrackingRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return core.RunTrackingRecord{}, err
	}
	return rec, nil
}

func (s *RedisStore) putRun(ctx context.Context, rec core.RunTrackingRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.runKey(rec.RunID), data, 0).Err()
}

// UpdateJob merges updates into the run record (best-effort; spec.md
// 4.10 step 9 and 4.11 treat failures here as logged, not fatal).
func (s *RedisStore) UpdateJob(ctx context.Context, runID core.RunId, updates map[string]interface{}) error {
	rec, err := s.getRun(ctx, runID)
	if err != nil {
		s.logger.Warn("update job failed to load run record", map[string]interface{}{"operation": "tracking.UpdateJob", "runId": string(runID), "error": err.Error()})
		return err
	}
	for k, v := range updates {
		switch k {
		case "clientsDone":
			if n, ok := v.(int); ok {
				rec.ClientsDone = n
			}
		case "lastClientId":
			if s, ok := v.(string); ok {
				rec.LastClientID = s
			}
		case "postsExamined":
			if n, ok := v.(int); ok {
				rec.PostsExamined += n
			}
		case "postsScored":
			if n, ok := v.(int); ok {
				rec.PostsScored += n
			}
		case "leadsSkipped":
			if n, ok := v.(int); ok {
				rec.LeadsSkipped += n
			}
		case "errors":
			if n, ok := v.(int); ok {
				rec.Errors += n
			}
		}
	}
	return s.putRun(ctx, rec)
}

// CompleteJob marks the run record terminal.
func (s *RedisStore) CompleteJob(ctx context.Context, runID core.RunId, status, notes string) error {
	rec, err := s.getRun(ctx, runID)
	if err != nil {
		return err
	}
	rec.Status = status
	rec.Notes = notes
	rec.CompletedAt = time.Now().UTC()
	return s.putRun(ctx, rec)
}

// UpdateRunRecord merges metrics into a client-run record, per spec.md
// 9's scoping rule: client metrics are written against the composed
// ClientRunId, never against the base RunId.
func (s *RedisStore) UpdateRunRecord(ctx context.Context, clientRunID core.ClientRunId, clientID string, updates RunRecordUpdate, createIfMissing bool) error {
	data, err := s.client.Get(ctx, s.clientRunKey(clientRunID)).Result()
	var rec core.ClientRunRecord
	if err == redis.Nil {
		if !createIfMissing {
			return core.NewFrameworkError("tracking.UpdateRunRecord", core.KindNotFound, string(clientRunID), nil)
		}
		rec = core.ClientRunRecord{ClientRunID: clientRunID, ClientID: clientID}
	} else if err != nil {
		return core.NewFrameworkError("tracking.UpdateRunRecord", core.KindUnavailable, string(clientRunID), err)
	} else if jsonErr := json.Unmarshal([]byte(data), &rec); jsonErr != nil {
		return jsonErr
	}

	mergeRunRecord(&rec, updates)

	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.clientRunKey(clientRunID), encoded, 0).Err()
}

func mergeRunRecord(rec *core.ClientRunRecord, updates RunRecordUpdate) {
	rec.PostsExamined += updates.PostsExamined
	rec.PostsScored += updates.PostsScored
	rec.PostScoringTokens += updates.PostScoringTokens
	rec.Errors += updates.Errors
	rec.LeadsSkipped += updates.LeadsSkipped
	rec.ErrorDetails = append(rec.ErrorDetails, updates.ErrorDetails...)
	if updates.Status != "" {
		rec.Status = updates.Status
	}
}

// CompleteClientProcessing writes the final metrics for a client-run and
// marks it terminal, creating the record if it was never opened.
func (s *RedisStore) CompleteClientProcessing(ctx context.Context, runID core.ClientRunId, clientID string, final RunRecordUpdate, opts CompletionOptions) error {
	return s.UpdateRunRecord(ctx, runID, clientID, final, opts.CreateIfMissing)
}
