package testsupport

import (
	"path/filepath"
	"testing"

	"sprocket/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ResultsDir = filepath.Join(base, "results")
	cfgVal.Paths.APIBind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithStageEndpoint points every stage service at the same base URL. Tests
// that run stage clients against a single httptest server use this.
func WithStageEndpoint(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		for _, svc := range []*config.StageService{
			&b.cfg.Stages.Diarization,
			&b.cfg.Stages.Transcription,
			&b.cfg.Stages.Segmentation,
			&b.cfg.Stages.Keyframes,
			&b.cfg.Stages.Summary,
		} {
			svc.BaseURL = baseURL
		}
	}
}

// WithClaimTTL overrides the idempotency claim lifetime in seconds.
func WithClaimTTL(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.ClaimTTL = seconds
	}
}

// WithMaxReceives overrides the queue redelivery limit.
func WithMaxReceives(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.MaxReceives = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
