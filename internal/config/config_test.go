package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.DatabaseURL)
	assert.Equal(t, 60, cfg.Query.RRFConstant)
}

func TestLoadConfigHonorsEnvOverrides(t *testing.T) {
	t.Setenv("AMP_PORT", "9999")
	t.Setenv("AMP_INDEX_WORKERS", "8")
	t.Setenv("AMP_CACHE_DEDUP_THRESHOLD", "0.85")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Indexing.Workers)
	assert.InDelta(t, 0.85, cfg.Cache.DedupThreshold, 0.0001)
}

func TestValidateRejectsOutOfRangeWorkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indexing.Workers = 99
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsGraphDepthOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Query.MaxGraphDepth = 11
	assert.Error(t, cfg.Validate())
}

func TestMain_EnvIsolation(t *testing.T) {
	// sanity check that AMP_PORT isn't leaking from the environment
	// the test binary was invoked in.
	if v := os.Getenv("AMP_PORT"); v != "" {
		t.Logf("AMP_PORT preset to %s outside test", v)
	}
}
