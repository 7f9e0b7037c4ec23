package testsupport

import (
	"path/filepath"
	"testing"

	"seedctl/internal/config"
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
	cfgVal.Paths.DataDir = filepath.Join(base, "agent-data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Publishing.OutputPath = filepath.Join(base, "bootstrapSeed.json")
	cfgVal.Publishing.ExecutorURL = "http://127.0.0.1:1/graphql"
	cfgVal.Publishing.RequestTimeoutSeconds = 5

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

// WithRuntimeBinary points the config at a specific runtime executable.
func WithRuntimeBinary(path string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Runtime.Binary = path
	}
}

// WithStubRuntime writes a stub runtime script into the base directory and
// configures it as the runtime binary.
func WithStubRuntime(stub StubRuntime) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Runtime.Binary = WriteStubRuntime(b.t, filepath.Join(b.baseDir, "bin"), stub)
	}
}

// WithExecutorURL sets the publishing endpoint.
func WithExecutorURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Publishing.ExecutorURL = url
	}
}

// WithConfigSubdir overrides the staged config subtree name.
func WithConfigSubdir(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Runtime.ConfigSubdir = name
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
