// Package identity mints, caches, and decomposes run identifiers.
package identity

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

var segmentPattern = regexp.MustCompile(`^\d{6}$`)

// Service mints, memoizes, and decomposes RunId/ClientRunId values. The
// zero value is not usable; construct with New.
type Service struct {
	logger core.Logger

	mu    sync.Mutex
	cache map[string]core.ClientRunId // clientId -> memoized ClientRunId
}

// New builds a Service. logger may be nil (a NoOpLogger is substituted).
func New(logger core.Logger) *Service {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Service{logger: logger, cache: make(map[string]core.ClientRunId)}
}

// Generate returns the current UTC time formatted YYMMDD-HHMMSS.
func (s *Service) Generate() core.RunId {
	return core.RunId(time.Now().UTC().Format("060102-150405"))
}

// Compose concatenates base and clientId with a hyphen. Both must be
// non-empty, non-object-shaped strings; coercion failures yield
// ErrMalformedIdentifier.
func (s *Service) Compose(base core.RunId, clientID string) (core.ClientRunId, error) {
	b, err := validateIDString(string(base))
	if err != nil {
		return "", core.NewFrameworkError("identity.Compose", core.KindValidation, string(base), err)
	}
	c, err := validateIDString(clientID)
	if err != nil {
		return "", core.NewFrameworkError("identity.Compose", core.KindValidation, clientID, err)
	}
	return core.ClientRunId(b + "-" + c), nil
}

// BaseOf extracts the base RunId (first two hyphen-separated segments) if
// both segments match ^\d{6}$; otherwise it warns and returns the input
// unmodified. It never errors for non-canonical format.
func (s *Service) BaseOf(id core.ClientRunId) core.RunId {
	parts := strings.Split(string(id), "-")
	if len(parts) >= 2 && segmentPattern.MatchString(parts[0]) && segmentPattern.MatchString(parts[1]) {
		return core.RunId(parts[0] + "-" + parts[1])
	}
	s.logger.Warn("non-canonical run identifier", map[string]interface{}{
		"operation": "identity.BaseOf",
		"id":        string(id),
	})
	return core.RunId(id)
}

// ClientIdOf returns everything after the second hyphen-separated segment,
// or "" with ok=false if there are fewer than three segments.
func (s *Service) ClientIdOf(id core.ClientRunId) (clientID string, ok bool) {
	parts := strings.Split(string(id), "-")
	if len(parts) < 3 {
		return "", false
	}
	return strings.Join(parts[2:], "-"), true
}

// GetOrCreateFor returns the memoized ClientRunId for clientID under base,
// creating one if absent or if forceNew is set.
func (s *Service) GetOrCreateFor(base core.RunId, clientID string, forceNew bool) (core.ClientRunId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !forceNew {
		if existing, ok := s.cache[clientID]; ok {
			return existing, nil
		}
	}
	composed, err := s.Compose(base, clientID)
	if err != nil {
		return "", err
	}
	s.cache[clientID] = composed
	return composed, nil
}

// validateIDString rejects object-shaped inputs, the literal
// "[object Object]", and empty strings.
func validateIDString(v string) (string, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty identifier component", core.ErrMalformedIdentifier)
	}
	if trimmed == "[object Object]" {
		return "", fmt.Errorf("%w: object-shaped identifier component", core.ErrMalformedIdentifier)
	}
	return trimmed, nil
}
