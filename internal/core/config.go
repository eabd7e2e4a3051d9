package core

import "time"

// Config enumerates every configurable item named in spec.md 6, built with
// the teacher's functional-options idiom (core.NewConfig(opts ...Option)).
type Config struct {
	ChunkSize        int
	ModelTimeout     time.Duration
	MaxOutputTokens  int
	Verbose          bool
	VerboseErrors    bool
	MaxVerboseErrors int

	ModelID       string
	ModelProject  string
	ModelLocation string

	AdminAlertHook string

	RegistryRedisURL   string
	TenantStoreRedisURL string
	TrackingRedisURL   string
	StackTraceRedisURL string

	Logger Logger
}

// Option mutates a Config during construction.
type Option func(*Config)

// DefaultConfig returns the spec-mandated defaults: chunk size 10, model
// timeout 120s, max output tokens 16384, 10 verbose error samples.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:        10,
		ModelTimeout:     120 * time.Second,
		MaxOutputTokens:  16384,
		MaxVerboseErrors: 10,
		Logger:           &NoOpLogger{},
	}
}

// NewConfig applies opts over DefaultConfig and enforces the minimums
// spec.md 5/6 name (model timeout floor 30s, chunk size floor 1).
func NewConfig(opts ...Option) (*Config, error) {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = 1
	}
	if c.ModelTimeout < 30*time.Second {
		c.ModelTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = &NoOpLogger{}
	}
	return c, nil
}

func WithChunkSize(n int) Option { return func(c *Config) { c.ChunkSize = n } }

func WithModelTimeout(d time.Duration) Option { return func(c *Config) { c.ModelTimeout = d } }

func WithVerbose(v, verboseErrors bool, maxErrors int) Option {
	return func(c *Config) {
		c.Verbose = v
		c.VerboseErrors = verboseErrors
		if maxErrors > 0 {
			c.MaxVerboseErrors = maxErrors
		}
	}
}

func WithModel(id, project, location string) Option {
	return func(c *Config) { c.ModelID = id; c.ModelProject = project; c.ModelLocation = location }
}

func WithAdminAlertHook(hook string) Option { return func(c *Config) { c.AdminAlertHook = hook } }

func WithRedisURLs(registry, tenantStore, tracking, stackTrace string) Option {
	return func(c *Config) {
		c.RegistryRedisURL = registry
		c.TenantStoreRedisURL = tenantStore
		c.TrackingRedisURL = tracking
		c.StackTraceRedisURL = stackTrace
	}
}

func WithLogger(l Logger) Option { return func(c *Config) { c.Logger = l } }
