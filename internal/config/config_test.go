package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/rng"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "local", c.RNG.Mode)
	assert.Equal(t, "localhost:4444", c.RNG.Address)
	assert.Equal(t, time.Second, c.RNG.Timeout)
	assert.Equal(t, "sync", c.Bus.Mode)
	assert.Equal(t, []string{"content"}, c.Content.Dirs)
	assert.Equal(t, 6, c.Sim.MaxTicks)
	assert.IsType(t, &rng.Local{}, c.NewRNG())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rng:
  mode: remote
  address: 127.0.0.1:5555
  timeout: 250ms
bus:
  mode: async
log:
  level: debug
  format: json
content:
  dirs: [packs, more]
sim:
  max_ticks: 20
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, c.RNG.Timeout)
	assert.Equal(t, "async", c.Bus.Mode)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, []string{"packs", "more"}, c.Content.Dirs)
	assert.Equal(t, 20, c.Sim.MaxTicks)
	assert.IsType(t, &rng.Remote{}, c.NewRNG())

	b, err := c.NewBus(logrus.New(), nil)
	require.NoError(t, err)
	assert.IsType(t, &bus.AsyncBus{}, b)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"rng mode", "rng.mode", "quantum"},
		{"rng timeout", "rng.timeout", "0s"},
		{"bus mode", "bus.mode", "carrier-pigeon"},
		{"bus transport", "bus.transport", "smoke"},
		{"websocket without url", "bus.transport", "websocket"},
		{"ticks", "sim.max_ticks", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("BAATOR_SIM_MAX_TICKS", "9")

	v := viper.New()
	v.SetEnvPrefix("baator")
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9, c.Sim.MaxTicks)
}
