package testsupport

import (
	"path/filepath"
	"testing"

	"fvrip/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Fetch.RetryBaseDelayMS = 0
	cfgVal.Fetch.RetryMaxDelayMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithFetchAttempts overrides the fetch retry budget on the test config.
func WithFetchAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.MaxAttempts = attempts
	}
}

// WithConcurrency overrides the pipeline worker count on the test config.
func WithConcurrency(workers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.Concurrency = workers
	}
}

// WithAuxAssets toggles companion-asset caching on the test config.
func WithAuxAssets(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Fetch.AuxAssets = enabled
	}
}

// WithPlaceholders toggles placeholder pages on the test config.
func WithPlaceholders(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.PlaceholderPages = enabled
	}
}
