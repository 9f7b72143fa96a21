package conf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conf "github.com/bartek5186/onec2www/internal/config"
)

func TestLoadOrCreate_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, firstRun, err := conf.LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, firstRun)
	assert.FileExists(t, path)

	assert.Equal(t, ":8085", cfg.ListenAddr)
	assert.Equal(t, "onec_exchange", cfg.CookieName)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "file", cfg.LockBackend)
	assert.EqualValues(t, 100<<20, cfg.FileLimitBytes)
	assert.Equal(t, 120, cfg.StaleSessionMin)
}

func TestLoadOrCreate_ExistingFileFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":":9000","exchange_login":"u"}`), 0o644))

	cfg, firstRun, err := conf.LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, firstRun)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "u", cfg.ExchangeLogin)
	// brakujące pola dostają defaulty
	assert.Equal(t, "onec_exchange", cfg.CookieName)
	assert.Equal(t, 64<<10, cfg.ChunkSizeBytes)
}

func TestLoadOrCreate_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{zepsute"), 0o644))

	_, _, err := conf.LoadOrCreate(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := conf.Default()
	cfg.ExchangePassword = "inne-haslo"
	require.NoError(t, conf.Save(path, cfg))

	got, _, err := conf.LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, "inne-haslo", got.ExchangePassword)
}
