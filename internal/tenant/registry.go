package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// RedisRegistry is the default Registry implementation: clients live as
// namespaced JSON blobs with a secondary "active" index, following the
// same namespace/TTL/SAdd-index idiom the teacher uses for service
// discovery.
type RedisRegistry struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisRegistry parses redisURL, pings it, and returns a registry
// client namespaced under "leadscorer".
func NewRedisRegistry(redisURL string, logger core.Logger) (*RedisRegistry, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewFrameworkError("tenant.NewRedisRegistry", core.KindConfiguration, redisURL, err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("tenant.NewRedisRegistry", core.KindUnavailable, redisURL, err)
	}
	return &RedisRegistry{client: client, namespace: "leadscorer", logger: logger}, nil
}

func (r *RedisRegistry) clientKey(id string) string { return fmt.Sprintf("%s:clients:%s", r.namespace, id) }
func (r *RedisRegistry) activeIndexKey() string      { return fmt.Sprintf("%s:clients:active", r.namespace) }
func (r *RedisRegistry) executionKey(clientID string) string {
	return fmt.Sprintf("%s:executions:%s", r.namespace, clientID)
}
func (r *RedisRegistry) jobStatusKey(clientID, jobType string) string {
	return fmt.Sprintf("%s:jobstatus:%s:%s", r.namespace, clientID, jobType)
}

// ListActiveClients returns every client registered in the active index,
// optionally narrowed to a single client id via filter.
func (r *RedisRegistry) ListActiveClients(ctx context.Context, filter *string) ([]core.Client, error) {
	var ids []string
	if filter != nil && *filter != "" {
		ids = []string{*filter}
	} else {
		result, err := r.client.SMembers(ctx, r.activeIndexKey()).Result()
		if err != nil {
			return nil, core.NewFrameworkError("tenant.ListActiveClients", core.KindUnavailable, "", err)
		}
		ids = result
	}

	clients := make([]core.Client, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.clientKey(id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			r.logger.Warn("client lookup failed", map[string]interface{}{"operation": "tenant.ListActiveClients", "clientId": id, "error": err.Error()})
			continue
		}
		var c core.Client
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			r.logger.Warn("client record unmarshal failed", map[string]interface{}{"operation": "tenant.ListActiveClients", "clientId": id, "error": err.Error()})
			continue
		}
		if c.Active {
			clients = append(clients, c)
		}
	}
	return clients, nil
}

// RegisterClient stores a client record and adds it to the active index
// when Active is true. Not part of the spec's Registry contract; no code
// in this module calls it.
func (r *RedisRegistry) RegisterClient(ctx context.Context, c core.Client) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.clientKey(c.ClientID), data, 0).Err(); err != nil {
		return core.NewFrameworkError("tenant.RegisterClient", core.KindUnavailable, c.ClientID, err)
	}
	if c.Active {
		if err := r.client.SAdd(ctx, r.activeIndexKey(), c.ClientID).Err(); err != nil {
			return core.NewFrameworkError("tenant.RegisterClient", core.KindUnavailable, c.ClientID, err)
		}
	}
	return nil
}

// LogExecution appends a best-effort execution record for a client. A
// failure here is logged, never returned as fatal by callers (spec.md 7).
func (r *RedisRegistry) LogExecution(ctx context.Context, clientID string, record map[string]interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	key := r.executionKey(clientID)
	if err := r.client.LPush(ctx, key, data).Err(); err != nil {
		return core.NewFrameworkError("tenant.LogExecution", core.KindUnavailable, clientID, err)
	}
	r.client.LTrim(ctx, key, 0, 99)
	return nil
}

// SetJobStatus records a job's state for a client, best-effort.
func (r *RedisRegistry) SetJobStatus(ctx context.Context, clientID, jobType, state, idOrReason string) error {
	key := r.jobStatusKey(clientID, jobType)
	fields := map[string]interface{}{"state": state, "idOrReason": idOrReason, "updatedAt": time.Now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, 24*time.Hour).Err(); err != nil {
		return core.NewFrameworkError("tenant.SetJobStatus", core.KindUnavailable, clientID, err)
	}
	return nil
}
