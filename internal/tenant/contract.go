// Package tenant implements the external-interface contracts spec.md 6
// names for the tenant registry and per-tenant datastore, plus the Lead
// Selector (spec.md 4.7).
package tenant

import (
	"context"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Persistent field-name contracts (spec.md 6). Leads-table calls into
// Store use these constants rather than hardcoded literals; the rubric
// loader reads its two tables' fields by literal name.
const (
	FieldPostsContent   = "Posts Content"
	FieldLinkedInURL    = "LinkedIn Profile URL"
	FieldDateScored     = "Date Posts Scored"
	FieldRelevanceScore = "Posts Relevance Score"
	FieldAIEvaluation   = "Posts AI Evaluation"
	FieldTopScoringPost = "Top Scoring Post"
	FieldSkipReason     = "Posts Skip Reason"
	FieldPostsJSONStatus = "Posts JSON Status"
	FieldPostsActioned  = "Posts Actioned"

	TableLeads                     = "Leads"
	TablePostScoringAttributes     = "Post Scoring Attributes"
	TablePostScoringInstructions   = "Post Scoring Instructions"

	ViewLeadsWithPostsNotYetScored = "Leads with Posts not yet scored"
)

// SelectOptions parameterizes a Store.Select call.
type SelectOptions struct {
	Fields     []string
	View       string
	Formula    string
	MaxRecords int
}

// Handle identifies an opened tenant connection.
type Handle struct {
	ClientID string
}

// Store is the tenant datastore adapter contract (spec.md 6). It exposes
// a capability-set primitive (HasField) so callers can probe optional
// fields like Posts Skip Reason without per-tenant compile-time typed
// bindings, per spec.md 9's design note.
type Store interface {
	Open(ctx context.Context, clientID string) (Handle, error)
	Select(ctx context.Context, h Handle, table string, opts SelectOptions) ([]core.Lead, error)
	Find(ctx context.Context, h Handle, table, id string) (core.Lead, error)
	Update(ctx context.Context, h Handle, table, id string, fields map[string]interface{}) (core.Lead, error)
	HasField(ctx context.Context, h Handle, table, field string) (bool, error)
}

// Registry is the tenant registry collaborator contract (spec.md 6).
type Registry interface {
	ListActiveClients(ctx context.Context, filter *string) ([]core.Client, error)
	LogExecution(ctx context.Context, clientID string, record map[string]interface{}) error
	SetJobStatus(ctx context.Context, clientID, jobType, state, idOrReason string) error
}

// UpdateUnknownField wraps core.ErrUnknownField identifying which field
// a tolerant-update caller should drop and retry without.
type UpdateUnknownField struct {
	Field string
}

func (e *UpdateUnknownField) Error() string {
	return "unknown field name: " + e.Field
}

func (e *UpdateUnknownField) Unwrap() error { return core.ErrUnknownField }
