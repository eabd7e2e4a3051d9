// Package stacktrace implements the Stack-Trace Store contract (spec.md
// 6, 4.11): archive full stack traces for error log lines under a
// microsecond-precision timestamp key, never allowing an archival
// failure to propagate.
package stacktrace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Record is one archived stack trace.
type Record struct {
	Timestamp    string
	RunID        string
	ClientID     string
	LeadID       string
	RequestID    string
	ErrorMessage string
	StackTrace   string
}

// Store is the Stack-Trace Store contract.
type Store interface {
	Save(ctx context.Context, r Record) error
	Lookup(ctx context.Context, timestamp string) (*Record, error)
}

// RedisStore is the default Store implementation: one JSON blob per
// timestamp key, with a capped retention window.
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    core.Logger
}

// NewRedisStore parses redisURL and pings it. ttl bounds how long
// archived traces are kept (0 disables expiry).
func NewRedisStore(redisURL string, ttl time.Duration, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewFrameworkError("stacktrace.NewRedisStore", core.KindConfiguration, redisURL, err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("stacktrace.NewRedisStore", core.KindUnavailable, redisURL, err)
	}
	return &RedisStore{client: client, namespace: "leadscorer", ttl: ttl, logger: logger}, nil
}

func (s *RedisStore) key(timestamp string) string {
	return fmt.Sprintf("%s:stacktraces:%s", s.namespace, timestamp)
}

// Save archives r. Failures are returned to the caller (who, per
// spec.md's archival-never-propagates rule, must log and discard rather
// than fail the operation that triggered archival).
func (s *RedisStore) Save(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(r.Timestamp), data, s.ttl).Err(); err != nil {
		return core.NewFrameworkError("stacktrace.Save", core.KindUnavailable, r.Timestamp, err)
	}
	return nil
}

// Lookup returns the archived record for timestamp, or nil if none is
// found.
func (s *RedisStore) Lookup(ctx context.Context, timestamp string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(timestamp)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, core.NewFrameworkError("stacktrace.Lookup", core.KindUnavailable, timestamp, err)
	}
	var r Record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
