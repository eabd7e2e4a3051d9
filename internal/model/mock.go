package model

import (
	"context"
	"errors"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// MockClient is a deterministic Client used by tests and local
// development; it optionally simulates a timeout or an error.
type MockClient struct {
	// ScoreFunc, if set, overrides the default behavior entirely.
	ScoreFunc func(ctx context.Context, req Request) (Response, error)

	// StaticResults is returned (with a fixed TokenUsage) when ScoreFunc
	// is nil and StaticResults is non-empty.
	StaticResults []core.AIScore

	// SimulateTimeout blocks until ctx is done and returns a
	// core.ErrModelTimeout-wrapped ScoringError.
	SimulateTimeout bool
}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) Score(ctx context.Context, req Request) (Response, error) {
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, req)
	}
	if m.SimulateTimeout {
		<-ctx.Done()
		return Response{}, &ScoringError{Err: errors.Join(core.ErrModelTimeout, ctx.Err())}
	}

	results := m.StaticResults
	if len(results) == 0 {
		for _, p := range req.Posts {
			results = append(results, core.AIScore{PostURL: p.PostURL, PostScore: 50, ScoringRationale: "mock score"})
		}
	}

	return Response{
		Results:    results,
		TokenUsage: TokenUsage{Prompt: 10, Completion: 5, Total: 15},
	}, nil
}
