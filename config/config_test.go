package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Workers, cfg.Workers)
	assert.Equal(t, Defaults().RelayAddr, cfg.RelayAddr)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsYAMLFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "prism.yaml")
	yaml := []byte("workers: 4\nrelay_addr: \"0.0.0.0:9999\"\npairs:\n  - BTC-USD\nexchanges:\n  - coinbase\n  - kraken\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "0.0.0.0:9999", cfg.RelayAddr)
	assert.Equal(t, []string{"BTC-USD"}, cfg.Pairs)
}

func TestEnvOverrideWins(t *testing.T) {
	t.Setenv("PRISM_WORKERS", "7")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
}

func TestValidateRejectsFewerThanTwoExchanges(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Exchanges = []string{"coinbase"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUndersizedThreadStack(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.ThreadStackMiB = 32
	assert.Error(t, cfg.Validate())
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 0\n"), 0o600))

	assert.Panics(t, func() { MustLoad(path) })
}
