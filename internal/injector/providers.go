package injector

import (
	"github.com/google/wire"
	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/config"
	"github.com/zeusync/envsim/internal/core/events/bus"
	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/scheduler"
	"github.com/zeusync/envsim/internal/core/updater"
	"github.com/zeusync/envsim/internal/core/world"
	"github.com/zeusync/envsim/internal/server"
)

// ProviderSet builds the application graph from a Config.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	bus.New,
	ProvideTerrain,
	ProvideEnvironment,
	updater.NewRegistry,
	ProvideUpdater,
	ProvideScheduler,
	ProvideServer,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) (log.Log, error) {
	logger, err := log.New(cfg.LoggerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger, nil
}

func ProvideTerrain(cfg config.Config) (*world.Terrain, error) {
	return cfg.BuildTerrain()
}

// ProvideEnvironment creates the environment and places the configured
// markers and agents.
func ProvideEnvironment(cfg config.Config, terrain *world.Terrain, eventBus bus.EventBus, logger log.Log) (*world.Environment, error) {
	opts, err := cfg.EnvironmentOptions()
	if err != nil {
		return nil, err
	}
	opts.Bus = eventBus
	opts.Logger = logger
	env, err := world.New(terrain, opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Populate(env); err != nil {
		return nil, errors.Wrap(err, "populate environment")
	}
	return env, nil
}

func ProvideUpdater(cfg config.Config, registry *updater.Registry, env *world.Environment, logger log.Log) (*updater.Updater, error) {
	action, err := registry.Build(cfg.Updater.Action, env, logger)
	if err != nil {
		return nil, err
	}
	return updater.NewUpdater(action), nil
}

func ProvideScheduler(cfg config.Config, upd *updater.Updater, logger log.Log) (*scheduler.Scheduler, error) {
	return scheduler.New(upd, scheduler.Options{
		Interval: cfg.Simulation.RefreshInterval,
		Logger:   logger,
	})
}

// ProvideServer returns nil when the server is disabled.
func ProvideServer(cfg config.Config, env *world.Environment, logger log.Log) *server.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	sc := server.DefaultServerConfig()
	sc.WebSocketAddr = cfg.Server.WebSocketAddr
	sc.QUICAddr = cfg.Server.QUICAddr
	sc.BroadcastEvery = cfg.Server.BroadcastEvery
	sc.ControlToken = cfg.Server.ControlToken
	return server.New(env, sc, logger)
}
