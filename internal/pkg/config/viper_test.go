package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  mode: roundtrip
  broker: kafka
  debug: true
  count: 10
  ratio: 0.5
  flush_ms: 250
  bootstrap_seconds: 3
  cors: "http://a.test, http://b.test"
  peers:
    - one
    - two
  labels: "env:dev,team:data"
  secret: aGVsbG8=
`

func TestNewViperFromBytes(t *testing.T) {
	// Arrange
	cfg, err := NewViperFromBytes("yaml", []byte(sampleYAML))
	require.NoError(t, err)

	// Act & Assert
	assert.Equal(t, "roundtrip", cfg.GetString("app.mode"))
	assert.True(t, cfg.GetBool("app.debug"))
	assert.Equal(t, 10, cfg.GetInt("app.count"))
	assert.InDelta(t, 0.5, cfg.GetFloat64("app.ratio"), 0.0001)
	assert.Equal(t, 250*time.Millisecond, cfg.GetMillisecond("app.flush_ms"))
	assert.Equal(t, 3*time.Second, cfg.GetSecond("app.bootstrap_seconds"))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetArray("app.cors"))
	assert.Equal(t, []string{"one", "two"}, cfg.GetArray("app.peers"))
	assert.Empty(t, cfg.GetArray("app.missing"))
	assert.Equal(t, map[string]string{"env": "dev", "team": "data"}, cfg.GetMap("app.labels"))
	assert.Equal(t, []byte("hello"), cfg.GetBinary("app.secret"))
	assert.NoError(t, cfg.Close())
}

func TestNewViperFromBytes_TypeRequired(t *testing.T) {
	_, err := NewViperFromBytes(" ", []byte(sampleYAML))

	assert.ErrorIs(t, err, ErrConfigTypeRequired)
}

func TestViper_Unmarshal(t *testing.T) {
	type app struct {
		Mode   string `mapstructure:"mode"`
		Broker string `mapstructure:"broker"`
		Count  int    `mapstructure:"count"`
	}

	cfg, err := NewViperFromBytes("yaml", []byte(sampleYAML))
	require.NoError(t, err)

	var got app
	require.NoError(t, cfg.Unmarshal("app", &got))

	assert.Equal(t, app{Mode: "roundtrip", Broker: "kafka", Count: 10}, got)
}

func TestLoadFile_JSONDocument(t *testing.T) {
	// Arrange
	type sender struct {
		Brokers []string `mapstructure:"brokers"`
		Acks    string   `mapstructure:"acks"`
	}
	dir := t.TempDir()
	file := filepath.Join(dir, "sender.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"brokers": ["localhost:9092"], "acks": "all"}`), 0o600))

	// Act
	var got sender
	err := LoadFile(file, &got)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, sender{Brokers: []string{"localhost:9092"}, Acks: "all"}, got)
}

func TestNewViper_MissingFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "nope.yaml"))

	assert.Error(t, err)
}

func TestNewViper_EnvOverride(t *testing.T) {
	// Arrange
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(sampleYAML), 0o600))
	t.Setenv("GOSTREAM_APP_BROKER", "pubsub")

	// Act
	cfg, err := NewViper(file, WithEnv("GOSTREAM"), WithWatch())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "pubsub", cfg.GetString("app.broker"))
	assert.Equal(t, "roundtrip", cfg.GetString("app.mode"))
}
