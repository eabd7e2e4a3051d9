// Package rubric loads (Loader) and assembles (Build) a client's
// scoring rubric from the tenant store (spec.md 4.4, 4.5).
package rubric

import (
	"context"
	"sort"

	"github.com/PartnerPiloting/leadscorer/internal/core"
	"github.com/PartnerPiloting/leadscorer/internal/tenant"
)

// Loader reads the prompt-component and scoring-attribute tables.
type Loader struct {
	store  tenant.Store
	logger core.Logger
}

// NewLoader builds a Loader over store. logger may be nil.
func NewLoader(store tenant.Store, logger core.Logger) *Loader {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Loader{store: store, logger: logger}
}

// Load reads Post Scoring Instructions (projected to componentId/name/
// text/order, sorted ascending by order) and Post Scoring Attributes
// (active defaults to true when blank/null). It warns, but does not
// error, when either list is empty. It never mutates the store.
func (l *Loader) Load(ctx context.Context, h tenant.Handle) (core.Rubric, error) {
	components, err := l.loadComponents(ctx, h)
	if err != nil {
		return core.Rubric{}, err
	}
	if len(components) == 0 {
		l.logger.Warn("no prompt components found", map[string]interface{}{"operation": "rubric.Load"})
	}

	attrs, err := l.loadAttributes(ctx, h)
	if err != nil {
		return core.Rubric{}, err
	}
	if len(attrs) == 0 {
		l.logger.Warn("no scoring attributes found", map[string]interface{}{"operation": "rubric.Load"})
	}

	return core.Rubric{PromptComponents: components, AttributesByID: attrs}, nil
}

func (l *Loader) loadComponents(ctx context.Context, h tenant.Handle) ([]core.PromptComponent, error) {
	leads, err := l.store.Select(ctx, h, tenant.TablePostScoringInstructions, tenant.SelectOptions{
		Fields: []string{"componentId", "name", "text", "order"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.PromptComponent, 0, len(leads))
	for _, lead := range leads {
		out = append(out, promptComponentFromFields(lead))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func promptComponentFromFields(lead core.Lead) core.PromptComponent {
	pc := core.PromptComponent{ComponentID: lead.ID}
	if lead.Fields == nil {
		return pc
	}
	if s, ok := lead.Fields["name"].(string); ok {
		pc.Name = s
	}
	if s, ok := lead.Fields["text"].(string); ok {
		pc.Text = s
	}
	if n, ok := lead.Fields["order"].(int); ok {
		pc.Order = n
	} else if f, ok := lead.Fields["order"].(float64); ok {
		pc.Order = int(f)
	}
	return pc
}

func (l *Loader) loadAttributes(ctx context.Context, h tenant.Handle) (map[string]core.Attribute, error) {
	leads, err := l.store.Select(ctx, h, tenant.TablePostScoringAttributes, tenant.SelectOptions{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]core.Attribute, len(leads))
	for _, lead := range leads {
		attr := attributeFromFields(lead)
		out[attr.ID] = attr
	}
	return out, nil
}

func attributeFromFields(lead core.Lead) core.Attribute {
	a := core.Attribute{ID: lead.ID, Active: true}
	f := lead.Fields
	if f == nil {
		return a
	}
	if s, ok := f["name"].(string); ok {
		a.Name = s
	}
	if s, ok := f["category"].(string); ok {
		a.Category = core.AttributeCategory(s)
	}
	if n, ok := f["maxPoints"].(int); ok {
		a.MaxPoints = n
	} else if fl, ok := f["maxPoints"].(float64); ok {
		a.MaxPoints = int(fl)
	}
	if s, ok := f["detailedInstructions"].(string); ok {
		a.DetailedInstructions = s
	}
	if ks, ok := f["positiveKeywords"].([]string); ok {
		a.PositiveKeywords = ks
	}
	if ks, ok := f["negativeKeywords"].([]string); ok {
		a.NegativeKeywords = ks
	}
	if s, ok := f["exampleHigh"].(string); ok {
		a.ExampleHigh = s
	}
	if s, ok := f["exampleLow"].(string); ok {
		a.ExampleLow = s
	}
	if v, ok := f["active"]; ok && v != nil {
		if b, ok := v.(bool); ok {
			a.Active = b
		}
	}
	return a
}
