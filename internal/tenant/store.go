package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Known formula sentinels the Lead Selector composes (spec.md 4.7). A real
// tenant-store adapter would accept an Airtable-style formula string; this
// default Redis-backed implementation recognises the same small set of
// predicates the selector actually needs and evaluates them in-process.
const (
	FormulaAll                = "ALL"
	FormulaNotScored          = "NOT_SCORED"
	FormulaNotScoredNoActioned = "NOT_SCORED_NO_ACTIONED"
)

// RedisStore is the default Store implementation. Each lead is a JSON
// blob at "<ns>:tenant:<clientId>:<table>:<id>"; a per-table id index set
// and an optional per-table schema set (used to simulate "unknown field"
// errors for fields a given tenant's table doesn't define) back Select
// and the tolerant-update contract.
type RedisStore struct {
	client    *redis.Client
	namespace string
	logger    core.Logger
}

// NewRedisStore parses redisURL, pings it, and returns a tenant store
// client namespaced under "leadscorer".
func NewRedisStore(redisURL string, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.NewFrameworkError("tenant.NewRedisStore", core.KindConfiguration, redisURL, err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.NewFrameworkError("tenant.NewRedisStore", core.KindUnavailable, redisURL, err)
	}
	return &RedisStore{client: client, namespace: "leadscorer", logger: logger}, nil
}

func (s *RedisStore) leadKey(clientID, table, id string) string {
	return fmt.Sprintf("%s:tenant:%s:%s:%s", s.namespace, clientID, table, id)
}
func (s *RedisStore) idIndexKey(clientID, table string) string {
	return fmt.Sprintf("%s:tenant:%s:%s:__ids__", s.namespace, clientID, table)
}
func (s *RedisStore) schemaKey(clientID, table string) string {
	return fmt.Sprintf("%s:tenant:%s:%s:__schema__", s.namespace, clientID, table)
}

// Open verifies the client's table index is reachable. A missing
// connection/ping failure is surfaced so callers can treat it as fatal
// (spec.md 4.10 step 1).
func (s *RedisStore) Open(ctx context.Context, clientID string) (Handle, error) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return Handle{}, core.NewFrameworkError("tenant.Store.Open", core.KindUnavailable, clientID, err)
	}
	return Handle{ClientID: clientID}, nil
}

// SeedLead stores a lead directly, bypassing Update's tolerant-field
// logic. No code in this module calls it.
func (s *RedisStore) SeedLead(ctx context.Context, clientID, table string, lead core.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.leadKey(clientID, table, lead.ID), data, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.idIndexKey(clientID, table), lead.ID).Err()
}

// SetSchema declares the set of fields a tenant's table supports. When a
// table has a schema declared, Update rejects fields outside it with
// UpdateUnknownField, enabling the tolerant-update retry path. Tables
// with no declared schema accept any field (useful for tests that don't
// exercise the tolerant-update branch).
func (s *RedisStore) SetSchema(ctx context.Context, clientID, table string, fields []string) error {
	key := s.schemaKey(clientID, table)
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		args[i] = f
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *RedisStore) loadLead(ctx context.Context, h Handle, table, id string) (core.Lead, error) {
	data, err := s.client.Get(ctx, s.leadKey(h.ClientID, table, id)).Result()
	if err == redis.Nil {
		return core.Lead{}, core.NewFrameworkError("tenant.Store", core.KindNotFound, id, fmt.Errorf("lead %s not found", id))
	}
	if err != nil {
		return core.Lead{}, core.NewFrameworkError("tenant.Store", core.KindUnavailable, id, err)
	}
	var lead core.Lead
	if err := json.Unmarshal([]byte(data), &lead); err != nil {
		return core.Lead{}, core.NewFrameworkError("tenant.Store", core.KindUnavailable, id, err)
	}
	return lead, nil
}

// Select evaluates opts.Formula/opts.View against every lead indexed for
// (clientID, table). See the Formula* constants for the predicates
// recognised; an unrecognised, non-empty View returns ErrViewNotFound so
// the Lead Selector's fallback path is exercised.
func (s *RedisStore) Select(ctx context.Context, h Handle, table string, opts SelectOptions) ([]core.Lead, error) {
	if opts.View != "" && opts.View != ViewLeadsWithPostsNotYetScored {
		return nil, core.NewFrameworkError("tenant.Store.Select", core.KindNotFound, opts.View, core.ErrViewNotFound)
	}

	ids, err := s.client.SMembers(ctx, s.idIndexKey(h.ClientID, table)).Result()
	if err != nil {
		return nil, core.NewFrameworkError("tenant.Store.Select", core.KindUnavailable, table, err)
	}

	formula := opts.Formula
	if opts.View == ViewLeadsWithPostsNotYetScored && formula == "" {
		formula = FormulaNotScored
	}

	hasActioned, _ := s.HasField(ctx, h, table, FieldPostsActioned)

	var out []core.Lead
	for _, id := range ids {
		lead, err := s.loadLead(ctx, h, table, id)
		if err != nil {
			continue
		}
		if !matchesFormula(formula, lead, hasActioned) {
			continue
		}
		out = append(out, lead)
		if opts.MaxRecords > 0 && len(out) >= opts.MaxRecords {
			break
		}
	}
	return out, nil
}

func matchesFormula(formula string, lead core.Lead, hasActioned bool) bool {
	switch formula {
	case FormulaAll:
		return true
	case FormulaNotScoredNoActioned:
		if hasActioned && lead.PostsActioned {
			return false
		}
		fallthrough
	case FormulaNotScored, "":
		return lead.DateScored.IsZero()
	default:
		return lead.DateScored.IsZero()
	}
}

// Find fetches exactly one lead by id.
func (s *RedisStore) Find(ctx context.Context, h Handle, table, id string) (core.Lead, error) {
	return s.loadLead(ctx, h, table, id)
}

// Update applies a tolerant partial update: any key in fields not present
// in the table's declared schema (see SetSchema) yields
// UpdateUnknownField naming that single field, so the Lead Processor's
// retry-without-that-field path (spec.md 4.8 step 8) can be exercised.
func (s *RedisStore) Update(ctx context.Context, h Handle, table, id string, fields map[string]interface{}) (core.Lead, error) {
	lead, err := s.loadLead(ctx, h, table, id)
	if err != nil {
		return core.Lead{}, err
	}

	schemaMembers, err := s.client.SMembers(ctx, s.schemaKey(h.ClientID, table)).Result()
	if err != nil {
		return core.Lead{}, core.NewFrameworkError("tenant.Store.Update", core.KindUnavailable, id, err)
	}
	if len(schemaMembers) > 0 {
		allowed := map[string]bool{}
		for _, f := range schemaMembers {
			allowed[f] = true
		}
		for field := range fields {
			if !allowed[field] {
				return core.Lead{}, &UpdateUnknownField{Field: field}
			}
		}
	}

	applyFields(&lead, fields)

	data, err := json.Marshal(lead)
	if err != nil {
		return core.Lead{}, err
	}
	if err := s.client.Set(ctx, s.leadKey(h.ClientID, table, id), data, 0).Err(); err != nil {
		return core.Lead{}, core.NewFrameworkError("tenant.Store.Update", core.KindUnavailable, id, err)
	}
	return lead, nil
}

func applyFields(lead *core.Lead, fields map[string]interface{}) {
	if lead.Fields == nil {
		lead.Fields = map[string]interface{}{}
	}
	for k, v := range fields {
		switch k {
		case FieldRelevanceScore:
			if n, ok := v.(int); ok {
				lead.RelevanceScore = n
			}
		case FieldAIEvaluation:
			if s, ok := v.(string); ok {
				lead.AIEvaluation = s
			}
		case FieldTopScoringPost:
			if s, ok := v.(string); ok {
				lead.TopScoringPost = s
			}
		case FieldDateScored:
			if t, ok := v.(time.Time); ok {
				lead.DateScored = t
			}
		case FieldSkipReason:
			if s, ok := v.(string); ok {
				lead.SkipReason = s
			}
		case FieldPostsJSONStatus:
			if s, ok := v.(string); ok {
				lead.PostsJSONStatus = s
			}
		default:
			lead.Fields[k] = v
		}
	}
}

// HasField probes whether table declares field in its schema. Tables
// with no declared schema report true for every field (optional fields
// default to "present" unless a tenant's schema says otherwise).
func (s *RedisStore) HasField(ctx context.Context, h Handle, table, field string) (bool, error) {
	schemaMembers, err := s.client.SMembers(ctx, s.schemaKey(h.ClientID, table)).Result()
	if err != nil {
		return false, core.NewFrameworkError("tenant.Store.HasField", core.KindUnavailable, field, err)
	}
	if len(schemaMembers) == 0 {
		return true, nil
	}
	for _, f := range schemaMembers {
		if strings.EqualFold(f, field) {
			return true, nil
		}
	}
	return false, nil
}
