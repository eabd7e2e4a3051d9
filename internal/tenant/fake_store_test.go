package tenant

import (
	"context"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// fakeStore is an in-memory Store used to exercise Select's branching
// without a real Redis backend. viewSupported controls whether the named
// view resolves; guardField controls whether FieldPostsActioned exists on
// the table (simulating a tenant whose schema lacks the guard).
type fakeStore struct {
	leads         map[string]core.Lead
	viewSupported bool
	guardField    bool
	// guardFormulaRejected simulates a tenant whose schema reports the
	// guard field present (HasField true) but whose underlying query
	// engine rejects the guarded formula anyway.
	guardFormulaRejected bool
	selectCalls          []SelectOptions
}

func newFakeStore() *fakeStore {
	return &fakeStore{leads: map[string]core.Lead{}, viewSupported: true, guardField: true}
}

func (f *fakeStore) Open(ctx context.Context, clientID string) (Handle, error) {
	return Handle{ClientID: clientID}, nil
}

func (f *fakeStore) Select(ctx context.Context, h Handle, table string, opts SelectOptions) ([]core.Lead, error) {
	f.selectCalls = append(f.selectCalls, opts)

	if opts.View != "" && opts.View != ViewLeadsWithPostsNotYetScored {
		return nil, core.NewFrameworkError("fakeStore.Select", core.KindNotFound, opts.View, core.ErrViewNotFound)
	}
	if opts.View == ViewLeadsWithPostsNotYetScored && !f.viewSupported {
		return nil, core.NewFrameworkError("fakeStore.Select", core.KindNotFound, opts.View, core.ErrViewNotFound)
	}
	if opts.Formula == FormulaNotScoredNoActioned && (!f.guardField || f.guardFormulaRejected) {
		return nil, &UpdateUnknownField{Field: FieldPostsActioned}
	}

	var out []core.Lead
	for _, lead := range f.leads {
		if !f.matches(opts.Formula, lead) {
			continue
		}
		out = append(out, lead)
		if opts.MaxRecords > 0 && len(out) >= opts.MaxRecords {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) matches(formula string, lead core.Lead) bool {
	switch formula {
	case FormulaAll:
		return true
	case FormulaNotScoredNoActioned:
		return lead.DateScored.IsZero() && !lead.PostsActioned
	default:
		return lead.DateScored.IsZero()
	}
}

func (f *fakeStore) Find(ctx context.Context, h Handle, table, id string) (core.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return core.Lead{}, core.NewFrameworkError("fakeStore.Find", core.KindNotFound, id, nil)
	}
	return lead, nil
}

func (f *fakeStore) Update(ctx context.Context, h Handle, table, id string, fields map[string]interface{}) (core.Lead, error) {
	lead := f.leads[id]
	applyFields(&lead, fields)
	f.leads[id] = lead
	return lead, nil
}

func (f *fakeStore) HasField(ctx context.Context, h Handle, table, field string) (bool, error) {
	if field == FieldPostsActioned {
		return f.guardField, nil
	}
	return true, nil
}
