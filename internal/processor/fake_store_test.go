package processor

import (
	"context"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
)

// fakeStore is an in-memory tenant.Store for processor tests. schema, if
// non-empty for a table, causes Update to reject fields outside it with
// *tenant.UpdateUnknownField, exercising the tolerant-update retry.
type fakeStore struct {
	leads  map[string]core.Lead
	schema map[string]map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: map[string]core.Lead{}, schema: map[string]map[string]bool{}}
}

func (f *fakeStore) Open(ctx context.Context, clientID string) (tenant.Handle, error) {
	return tenant.Handle{ClientID: clientID}, nil
}

func (f *fakeStore) Select(ctx context.Context, h tenant.Handle, table string, opts tenant.SelectOptions) ([]core.Lead, error) {
	var out []core.Lead
	for _, l := range f.leads {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) Find(ctx context.Context, h tenant.Handle, table, id string) (core.Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return core.Lead{}, core.NewFrameworkError("fakeStore.Find", core.KindNotFound, id, nil)
	}
	return l, nil
}

func (f *fakeStore) Update(ctx context.Context, h tenant.Handle, table, id string, fields map[string]interface{}) (core.Lead, error) {
	lead := f.leads[id]
	if allowed, ok := f.schema[table]; ok {
		for field := range fields {
			if !allowed[field] {
				return core.Lead{}, &tenant.UpdateUnknownField{Field: field}
			}
		}
	}
	if lead.Fields == nil {
		lead.Fields = map[string]interface{}{}
	}
	for k, v := range fields {
		switch k {
		case tenant.FieldRelevanceScore:
			lead.RelevanceScore = v.(int)
		case tenant.FieldAIEvaluation:
			lead.AIEvaluation = v.(string)
		case tenant.FieldTopScoringPost:
			lead.TopScoringPost = v.(string)
		case tenant.FieldDateScored:
			if t, ok := v.(time.Time); ok {
				lead.DateScored = t
			}
		case tenant.FieldSkipReason:
			lead.SkipReason = v.(string)
		case tenant.FieldPostsJSONStatus:
			lead.PostsJSONStatus = v.(string)
		default:
			lead.Fields[k] = v
		}
	}
	f.leads[id] = lead
	return lead, nil
}

func (f *fakeStore) HasField(ctx context.Context, h tenant.Handle, table, field string) (bool, error) {
	allowed, ok := f.schema[table]
	if !ok {
		return true, nil
	}
	return allowed[field], nil
}
