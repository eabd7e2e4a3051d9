package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

func TestSelectExplicitTargetIDsTakesPrecedence(t *testing.T) {
	store := newFakeStore()
	store.leads["a"] = core.Lead{ID: "a", PostsContent: "some substantial content here", DateScored: time.Now()}
	store.leads["b"] = core.Lead{ID: "b", PostsContent: "more substantial content here"}

	leads, err := Select(context.Background(), store, Handle{}, 10, SelectorOptions{
		TargetIDs:    []string{"a", "missing", "b"},
		ForceRescore: false,
	}, nil)

	require.NoError(t, err)
	// targetIds wins even though "a" already has a DateScored (Open
	// Question decision 4); "missing" is silently dropped.
	require.Len(t, leads, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{leads[0].ID, leads[1].ID})
}

func TestSelectViewMissingFallsBackToFormula(t *testing.T) {
	store := newFakeStore()
	store.viewSupported = false
	store.leads["c"] = core.Lead{ID: "c", PostsContent: "plenty of usable content"}
	store.leads["d"] = core.Lead{ID: "d", PostsContent: "plenty of usable content", DateScored: time.Now()}

	leads, err := Select(context.Background(), store, Handle{}, 0, SelectorOptions{}, nil)

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "c", leads[0].ID)
}

func TestSelectGuardFieldUnknownRetriesWithoutGuard(t *testing.T) {
	store := newFakeStore()
	store.viewSupported = false
	store.guardFormulaRejected = true
	store.leads["e"] = core.Lead{ID: "e", PostsContent: "plenty of usable content", PostsActioned: true}

	leads, err := Select(context.Background(), store, Handle{}, 0, SelectorOptions{}, nil)

	require.NoError(t, err)
	// The guarded formula would have excluded "e" (PostsActioned); once
	// the guard is dropped after the unknown-field rejection, it matches.
	require.Len(t, leads, 1)
	assert.Equal(t, "e", leads[0].ID)
}

func TestSelectForceRescoreUsesFormulaAll(t *testing.T) {
	store := newFakeStore()
	store.leads["f"] = core.Lead{ID: "f", PostsContent: "plenty of usable content", DateScored: time.Now()}

	leads, err := Select(context.Background(), store, Handle{}, 0, SelectorOptions{ForceRescore: true}, nil)

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "f", leads[0].ID)
}

func TestSelectPostSelectionFilterDropsUnusableContent(t *testing.T) {
	store := newFakeStore()
	store.leads["g"] = core.Lead{ID: "g", PostsContent: "short"}
	store.leads["h"] = core.Lead{ID: "h", PostsContent: "this one has enough content"}

	leads, err := Select(context.Background(), store, Handle{}, 0, SelectorOptions{}, nil)

	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "h", leads[0].ID)
}

func TestSelectLimitAppliedLast(t *testing.T) {
	store := newFakeStore()
	for _, id := range []string{"i", "j", "k"} {
		store.leads[id] = core.Lead{ID: id, PostsContent: "this one has enough content"}
	}

	leads, err := Select(context.Background(), store, Handle{}, 2, SelectorOptions{}, nil)

	require.NoError(t, err)
	assert.Len(t, leads, 2)
}
