// Package config loads typed settings from viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/rng"
)

// EnvKeyReplacer maps nested keys such as sim.max_ticks to BAATOR_SIM_MAX_TICKS.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// ErrInvalidConfig is returned for settings outside their allowed values.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full set of runtime settings.
type Config struct {
	RNG     RNGConfig     `mapstructure:"rng"`
	Bus     BusConfig     `mapstructure:"bus"`
	Log     LogConfig     `mapstructure:"log"`
	Content ContentConfig `mapstructure:"content"`
	Sim     SimConfig     `mapstructure:"sim"`
}

// RNGConfig selects the random source.
type RNGConfig struct {
	Mode    string        `mapstructure:"mode"`
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BusConfig selects the delivery strategy and an optional external transport.
type BusConfig struct {
	Mode         string `mapstructure:"mode"`
	Transport    string `mapstructure:"transport"`
	WebSocketURL string `mapstructure:"websocket_url"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ContentConfig lists directories searched for rule packs.
type ContentConfig struct {
	Dirs []string `mapstructure:"dirs"`
}

// SimConfig bounds simulation runs.
type SimConfig struct {
	MaxTicks int `mapstructure:"max_ticks"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rng.mode", "local")
	v.SetDefault("rng.address", "localhost:4444")
	v.SetDefault("rng.timeout", time.Second)
	v.SetDefault("bus.mode", "sync")
	v.SetDefault("bus.transport", "")
	v.SetDefault("bus.websocket_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("content.dirs", []string{"content"})
	v.SetDefault("sim.max_ticks", 6)
}

// Load applies defaults, decodes v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return c, c.Validate()
}

// Validate checks every enumerated setting.
func (c Config) Validate() error {
	switch c.RNG.Mode {
	case "local", "remote":
	default:
		return fmt.Errorf("%w: rng.mode %q must be local or remote", ErrInvalidConfig, c.RNG.Mode)
	}
	if c.RNG.Mode == "remote" && c.RNG.Address == "" {
		return fmt.Errorf("%w: rng.address is required in remote mode", ErrInvalidConfig)
	}
	if c.RNG.Timeout <= 0 {
		return fmt.Errorf("%w: rng.timeout must be positive", ErrInvalidConfig)
	}
	switch c.Bus.Mode {
	case "", "sync", "async":
	default:
		return fmt.Errorf("%w: bus.mode %q must be sync or async", ErrInvalidConfig, c.Bus.Mode)
	}
	switch c.Bus.Transport {
	case "":
	case "websocket":
		if c.Bus.WebSocketURL == "" {
			return fmt.Errorf("%w: bus.websocket_url is required for the websocket transport", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: bus.transport %q is not supported", ErrInvalidConfig, c.Bus.Transport)
	}
	if c.Sim.MaxTicks < 1 {
		return fmt.Errorf("%w: sim.max_ticks must be at least 1", ErrInvalidConfig)
	}
	return nil
}

// NewRNG builds the configured random source.
func (c Config) NewRNG() rng.RNG {
	if c.RNG.Mode == "remote" {
		return rng.NewRemote(c.RNG.Address, c.RNG.Timeout)
	}
	return rng.NewLocal()
}

// NewBus builds the configured event bus, dialing the external transport
// when one is set.
func (c Config) NewBus(log logrus.FieldLogger, metrics *bus.Metrics) (bus.Bus, error) {
	opts := []bus.Option{bus.WithLogger(log), bus.WithMetrics(metrics)}
	if c.Bus.Transport == "websocket" {
		t, err := bus.DialWebSocket(c.Bus.WebSocketURL, c.RNG.Timeout)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bus.WithTransport(t))
	}
	return bus.New(c.Bus.Mode, opts...)
}
