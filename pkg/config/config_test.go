package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Dialect)
	assert.Equal(t, 1536, cfg.Storage.VectorDimension)
	assert.Equal(t, 30*time.Minute, cfg.Storage.MaxConnLifetime)
	assert.True(t, cfg.KV.UseBadgerFallback)
	assert.Equal(t, 50.0, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Dreaming.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Dreaming.TickInterval)
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadReadsEnvOverrides(t *testing.T) {
	t.Setenv("P8FS_STORAGE_DIALECT", "tidb")
	t.Setenv("P8FS_DREAMING_ENABLED", "false")
	t.Setenv("P8FS_TENANTS_IDS", "tenant-a, tenant-b ,tenant-c")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "tidb", cfg.Storage.Dialect)
	assert.False(t, cfg.Dreaming.Enabled)
	assert.Equal(t, []string{"tenant-a", "tenant-b", "tenant-c"}, cfg.Tenants.IDs)
}

func TestSplitNonEmptyFiltersBlanks(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, ,b,"))
	assert.Nil(t, splitNonEmpty(""))
}

func TestLoadNoTenantsIsNil(t *testing.T) {
	os.Unsetenv("P8FS_TENANTS_IDS")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Tenants.IDs)
}
