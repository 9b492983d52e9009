package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "meshgate", cfg.MQTT.Prefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, time.Second, cfg.Rules.SweepInterval)
	assert.Equal(t, 5*time.Minute, cfg.Rules.BindingVerifyInterval)
	assert.Equal(t, 5*time.Second, cfg.Persistence.SaveDelay)
	assert.Equal(t, 15*time.Minute, cfg.Persistence.TriggerSaveDelay)
	assert.Equal(t, QueueInline, cfg.Queue.Mode)
	assert.False(t, cfg.Rules.LegacyActions)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
app:
  port: 9000
rules:
  legacy_actions: true
  sweep_interval: 2s
queue:
  mode: asynq
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("APP_PORT", "9100")

	cfg, err := Load(viper.New(), dir)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.App.Port)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.True(t, cfg.Rules.LegacyActions)
	assert.Equal(t, 2*time.Second, cfg.Rules.SweepInterval)
	assert.Equal(t, QueueAsynq, cfg.Queue.Mode)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("QUEUE_MODE", "kafka")
	_, err := Load(viper.New(), t.TempDir())
	assert.ErrorContains(t, err, "queue.mode")
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("app: [\n"), 0o600))
	_, err := Load(viper.New(), dir)
	assert.ErrorContains(t, err, "read config")
}
