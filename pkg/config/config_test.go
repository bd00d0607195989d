package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aakaka525-design/auto-trade/pkg/secretstore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Venue.Name)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, "json", cfg.Persistence.Backend)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
venue:
  name: paper
engine:
  workers: 8
  assume_filled_on_ack: true
risk:
  max_position_per_symbol: "25"
  daily_loss_limit: "300"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.True(t, cfg.Engine.AssumeFilledOnAck)
	assert.True(t, cfg.RiskDecimal(cfg.Risk.MaxPositionPerSymbol).Equal(cfg.RiskDecimal("25")))
	// 文件未覆盖的字段保留默认值
	assert.Equal(t, 256, cfg.Engine.QueueSize)
}

func TestValidateLighterRequiresCredentials(t *testing.T) {
	path := writeConfig(t, `
venue:
  name: lighter
  base_url: https://example.test
  ws_url: wss://example.test/ws
`)
	t.Setenv("LIGHTER_API_KEY", "")
	_, err := Load(path)
	assert.Error(t, err)

	t.Setenv("LIGHTER_API_KEY", "test-key")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.Venue.APIKey)
}

func TestValidateRejectsBadDecimal(t *testing.T) {
	path := writeConfig(t, `
risk:
  daily_loss_limit: "not-a-number"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsUnknownVenue(t *testing.T) {
	path := writeConfig(t, `
venue:
  name: binance
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSecretStoreFallback(t *testing.T) {
	secretsDir := filepath.Join(t.TempDir(), "secrets.badger")
	store, err := secretstore.Open(secretstore.Options{Path: secretsDir})
	require.NoError(t, err)
	require.NoError(t, store.Set(secretstore.EnvPrefix+"LIGHTER_API_KEY", "from-store"))
	require.NoError(t, store.Close())

	path := writeConfig(t, `
venue:
  name: lighter
  base_url: https://example.test
  ws_url: wss://example.test/ws
secrets:
  path: `+secretsDir+`
`)
	t.Setenv("LIGHTER_API_KEY", "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-store", cfg.Venue.APIKey)
}

func TestEnvBeatsSecretStore(t *testing.T) {
	secretsDir := filepath.Join(t.TempDir(), "secrets.badger")
	store, err := secretstore.Open(secretstore.Options{Path: secretsDir})
	require.NoError(t, err)
	require.NoError(t, store.Set(secretstore.EnvPrefix+"LIGHTER_API_KEY", "from-store"))
	require.NoError(t, store.Close())

	path := writeConfig(t, `
venue:
  name: lighter
  base_url: https://example.test
  ws_url: wss://example.test/ws
secrets:
  path: `+secretsDir+`
`)
	t.Setenv("LIGHTER_API_KEY", "from-env")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Venue.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}
