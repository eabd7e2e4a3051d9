package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// SelectorOptions parameterizes Select (spec.md 4.7).
type SelectorOptions struct {
	ForceRescore   bool
	TargetIDs      []string
	LeadsTableName string
}

// Select implements the Lead Selector policy from spec.md 4.7: explicit
// targets first, then the named view, then a formula fallback, with a
// post-selection content-usability filter and limit applied last.
//
// Decision (DESIGN.md open question 4): an explicit, non-empty TargetIDs
// always wins over ForceRescore; ForceRescore only influences the
// view/formula branches taken when TargetIDs is empty.
func Select(ctx context.Context, store Store, h Handle, limit int, opts SelectorOptions, logger core.Logger) ([]core.Lead, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	table := opts.LeadsTableName
	if table == "" {
		table = TableLeads
	}

	if len(opts.TargetIDs) > 0 {
		return selectByTargetIDs(ctx, store, h, table, opts.TargetIDs, limit)
	}

	// Existence probe before the view path (spec.md 4.7 step 4): if the
	// candidate table is unreachable, return empty rather than erroring.
	if _, err := store.Select(ctx, h, table, SelectOptions{MaxRecords: 1}); err != nil {
		if core.IsRetryable(err) || isTableUnreachable(err) {
			logger.Warn("candidate table unreachable, returning empty", map[string]interface{}{
				"operation": "tenant.Select", "table": table, "error": err.Error(),
			})
			return nil, nil
		}
	}

	formula := ""
	if opts.ForceRescore {
		formula = FormulaAll
	}
	leads, err := store.Select(ctx, h, table, SelectOptions{View: ViewLeadsWithPostsNotYetScored, Formula: formula, MaxRecords: 0})
	if err != nil && !core.IsNotFound(err) {
		return nil, err
	}

	if err != nil || len(leads) == 0 {
		leads, err = selectByFormulaFallback(ctx, store, h, table, opts, logger)
		if err != nil {
			return nil, err
		}
	}

	return applyPostSelectionFilter(leads, limit), nil
}

// isTableUnreachable narrows the existence probe's error to genuinely
// unavailable/retryable kinds; a validation or not-found error from the
// probe should surface, not be swallowed into an empty result.
func isTableUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrTableUnreachable) {
		return true
	}
	var fe *core.FrameworkError
	if errors.As(err, &fe) {
		return fe.Kind == core.KindUnavailable || fe.Kind == core.KindTimeout
	}
	return false
}

func selectByTargetIDs(ctx context.Context, store Store, h Handle, table string, ids []string, limit int) ([]core.Lead, error) {
	var out []core.Lead
	for _, id := range ids {
		lead, err := store.Find(ctx, h, table, id)
		if err != nil {
			continue // silently drop not-found, per spec.md 4.7 step 1
		}
		out = append(out, lead)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// selectByFormulaFallback applies postsContent!='' AND dateScored blank
// (or always-true under forceRescore), with an optional postsActioned
// guard that is dropped and retried once if the guard field doesn't
// exist on this tenant's table.
func selectByFormulaFallback(ctx context.Context, store Store, h Handle, table string, opts SelectorOptions, logger core.Logger) ([]core.Lead, error) {
	formula := FormulaNotScored
	if opts.ForceRescore {
		formula = FormulaAll
	}

	hasGuard, err := store.HasField(ctx, h, table, FieldPostsActioned)
	if err == nil && hasGuard && !opts.ForceRescore {
		guarded := FormulaNotScoredNoActioned
		leads, err := store.Select(ctx, h, table, SelectOptions{Formula: guarded})
		if err == nil {
			return leads, nil
		}
		if !isUnknownFieldErr(err) {
			return nil, err
		}
		logger.Warn("postsActioned guard rejected as unknown field, retrying without it", map[string]interface{}{
			"operation": "tenant.selectByFormulaFallback", "table": table,
		})
	}

	return store.Select(ctx, h, table, SelectOptions{Formula: formula})
}

func isUnknownFieldErr(err error) bool {
	_, ok := err.(*UpdateUnknownField)
	return ok || core.IsUnknownField(err)
}

// applyPostSelectionFilter drops records without usable postsContent
// (non-string/non-array, a string under 10 non-whitespace characters, or
// an empty array), then truncates to limit.
func applyPostSelectionFilter(leads []core.Lead, limit int) []core.Lead {
	var out []core.Lead
	for _, lead := range leads {
		if !hasUsablePostsContent(lead.PostsContent) {
			continue
		}
		out = append(out, lead)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func hasUsablePostsContent(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return len(strings.Join(strings.Fields(t), "")) >= 10
	case []interface{}:
		return len(t) > 0
	case []core.Post:
		return len(t) > 0
	case []map[string]interface{}:
		return len(t) > 0
	default:
		return false
	}
}
