package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

func TestComposeBaseOfClientIdOfRoundTrip(t *testing.T) {
	svc := New(nil)

	clients := []string{"acme", "multi-hyphen-client", "c1"}
	base := core.RunId("260730-101500")

	for _, clientID := range clients {
		composed, err := svc.Compose(base, clientID)
		require.NoError(t, err)

		assert.Equal(t, base, svc.BaseOf(composed), "baseOf(compose(R,C)) == R")

		got, ok := svc.ClientIdOf(composed)
		require.True(t, ok)
		assert.Equal(t, clientID, got, "clientIdOf(compose(R,C)) == C")
	}
}

func TestComposeRejectsEmptyAndObjectShaped(t *testing.T) {
	svc := New(nil)

	_, err := svc.Compose("", "acme")
	assert.ErrorIs(t, err, core.ErrMalformedIdentifier)

	_, err = svc.Compose(core.RunId("260730-101500"), "[object Object]")
	assert.ErrorIs(t, err, core.ErrMalformedIdentifier)
}

func TestBaseOfNonCanonicalWarnsButDoesNotError(t *testing.T) {
	svc := New(nil)
	got := svc.BaseOf(core.ClientRunId("not-canonical"))
	assert.Equal(t, core.RunId("not-canonical"), got)
}

func TestClientIdOfTooFewSegments(t *testing.T) {
	svc := New(nil)
	_, ok := svc.ClientIdOf(core.ClientRunId("260730-101500"))
	assert.False(t, ok)
}

func TestGetOrCreateForMemoizesUnlessForceNew(t *testing.T) {
	svc := New(nil)
	base := core.RunId("260730-101500")

	first, err := svc.GetOrCreateFor(base, "acme", false)
	require.NoError(t, err)

	second, err := svc.GetOrCreateFor(base, "acme", false)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	third, err := svc.GetOrCreateFor(base, "acme", true)
	require.NoError(t, err)
	assert.Equal(t, first, third, "same base+client composes identically even when forced fresh")
}
