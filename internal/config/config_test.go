package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sirtoolchain/sircc/internal/config"
	"github.com/sirtoolchain/sircc/internal/logging"
)

func TestLoadDefaultsBackendToStub(t *testing.T) {
	t.Setenv("SIRCC_BACKEND", "")
	cfg := config.Load()
	assert.Equal(t, config.BackendStub, cfg.Backend)
}

func TestLoadNormalizesKnownBackend(t *testing.T) {
	t.Setenv("SIRCC_BACKEND", "ZASM")
	cfg := config.Load()
	assert.Equal(t, config.BackendZASM, cfg.Backend)
}

func TestLoadUnknownBackendFallsBackToStub(t *testing.T) {
	t.Setenv("SIRCC_BACKEND", "bogus")
	cfg := config.Load()
	assert.Equal(t, config.BackendStub, cfg.Backend)
}

func TestLoadReadsFSRootAndLogLevel(t *testing.T) {
	t.Setenv("ZI_FS_ROOT", "/tmp/sandbox-root")
	t.Setenv("SIRCC_LOG_LEVEL", "debug")
	cfg := config.Load()
	assert.Equal(t, "/tmp/sandbox-root", cfg.FSRoot)
	assert.Equal(t, logging.Debug, cfg.LogLevel)
}
