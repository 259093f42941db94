package cmd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/suderio/baator/internal/bus"
	"github.com/suderio/baator/internal/config"
	"github.com/suderio/baator/internal/dice"
	"github.com/suderio/baator/internal/logger"
	"github.com/suderio/baator/internal/rng"
	"github.com/suderio/baator/internal/rules"
)

// app is the wired set of services a command works with.
type app struct {
	cfg      config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	events   bus.Bus
	commands *bus.CommandBus
	dice     *dice.Service
	engine   *rules.Engine
}

func newApp() (*app, error) {
	return newAppWith(nil)
}

// newAppWith wires every service. source overrides the configured RNG
// when non-nil.
func newAppWith(source rng.RNG) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	busMetrics := bus.NewMetrics(registry)
	events, err := cfg.NewBus(log, busMetrics)
	if err != nil {
		return nil, err
	}
	events.Start()

	if source == nil {
		source = cfg.NewRNG()
	}
	commands := bus.NewCommandBus(bus.WithLogger(log), bus.WithMetrics(busMetrics))
	svc := dice.NewService(source, events, dice.WithLogger(log), dice.WithMetrics(dice.NewMetrics(registry)))
	if err := svc.Register(commands); err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		log:      log,
		registry: registry,
		events:   events,
		commands: commands,
		dice:     svc,
		engine:   rules.NewEngine(svc, events, commands, rules.WithLogger(log)),
	}, nil
}

func (a *app) Close() {
	a.events.Stop()
}
