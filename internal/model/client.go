// Package model implements the generative model adapter contract
// (spec.md 4.6, 6): invoke the model with a system prompt and posts,
// enforce a timeout, normalise the response shape, and report token
// usage.
package model

import (
	"context"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// Request is the Model Client's input contract.
type Request struct {
	SystemPrompt string
	LeadID       string
	Posts        []core.Post
}

// TokenUsage reports the model's token accounting for one call.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// Response is the Model Client's normalised output contract: one
// AIScore per input post, regardless of which of the three wrapper
// shapes the raw model response used.
type Response struct {
	Results    []core.AIScore
	TokenUsage TokenUsage
}

// Client is the Model Client contract every Lead Processor call goes
// through.
type Client interface {
	Score(ctx context.Context, req Request) (Response, error)
}

// ScoringError is returned by a Client when generation fails; it carries
// the diagnostic fields spec.md 4.6 step 7 requires be attached before
// rethrowing.
type ScoringError struct {
	Err           error
	FinishReason  string
	SafetyRatings string
	RawSnippet    string // at most 500 chars of the raw response
	Timestamp     time.Time
}

func (e *ScoringError) Error() string {
	return e.Err.Error()
}

func (e *ScoringError) Unwrap() error { return e.Err }

const rawSnippetMaxLen = 500

func truncateSnippet(s string) string {
	if len(s) <= rawSnippetMaxLen {
		return s
	}
	return s[:rawSnippetMaxLen]
}

// Config configures a Client (functional options, same idiom as the
// teacher's ai.AIConfig/AIOption pair).
type Config struct {
	Timeout         time.Duration
	MaxOutputTokens int
	Temperature     float64
	Logger          core.Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

// DefaultConfig matches spec.md 4.6/6: temperature 0, 16384 max output
// tokens, 120s timeout (minimum enforced at 30s).
func DefaultConfig() *Config {
	return &Config{
		Timeout:         120 * time.Second,
		MaxOutputTokens: 16384,
		Temperature:     0,
		Logger:          &core.NoOpLogger{},
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d < 30*time.Second {
			d = 30 * time.Second
		}
		c.Timeout = d
	}
}

func WithMaxOutputTokens(n int) Option { return func(c *Config) { c.MaxOutputTokens = n } }
func WithLogger(l core.Logger) Option  { return func(c *Config) { c.Logger = l } }

func buildConfig(opts ...Option) *Config {
	c := DefaultConfig()
	for _, o := range opts {
		o(c)
	}
	return c
}
