package injector

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/envsim/internal/config"
	"github.com/zeusync/envsim/internal/core/events/bus"
	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/scheduler"
	"github.com/zeusync/envsim/internal/core/updater"
	"github.com/zeusync/envsim/internal/core/world"
	"github.com/zeusync/envsim/internal/server"
)

// App is the wired application.
type App struct {
	Config      config.Config
	Logger      log.Log
	Bus         bus.EventBus
	Environment *world.Environment
	Updater     *updater.Updater
	Scheduler   *scheduler.Scheduler
	// Server is nil when disabled.
	Server *server.Server
}

// Run initializes the environment, then drives the scheduler and the server
// until ctx is done. The environment is shut down before Run returns.
func (a *App) Run(ctx context.Context) error {
	sub, err := a.traceEvents()
	if err != nil {
		return err
	}
	defer func() { _ = a.Bus.Unsubscribe(sub) }()

	if err := a.Environment.Initialize(ctx); err != nil {
		return errors.Wrap(err, "initialize environment")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Environment.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error("Environment shutdown failed", log.Error(err))
		}
		stats := a.Environment.Stats()
		a.Logger.Info("Simulation finished",
			log.Uint64("ticks", stats.Ticks),
			log.Uint64("collisions", stats.Collisions),
			log.Uint64("placement_retries", stats.PlacementRetries),
			log.Uint64("out_of_bounds", stats.OutOfBounds),
			log.Uint64("missed_triggers", a.Scheduler.Status().MissedExecutions),
			log.Uint64("events_published", a.Bus.GetMetrics().Published))
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Scheduler.Run(gctx) })
	if a.Server != nil {
		g.Go(func() error { return a.Server.Run(gctx) })
	}
	return g.Wait()
}

// Step initializes the environment and runs n ticks through the updater.
func (a *App) Step(ctx context.Context, n int) (*world.Snapshot, error) {
	if err := a.Environment.Initialize(ctx); err != nil {
		return nil, errors.Wrap(err, "initialize environment")
	}
	defer func() { _ = a.Environment.Shutdown(context.Background()) }()

	for i := 0; i < n; i++ {
		if err := a.Updater.Invoke(ctx); err != nil && !errors.Is(err, world.ErrPublish) {
			return nil, errors.Wrapf(err, "tick %d", i+1)
		}
	}
	if snap := a.Environment.LastSnapshot(); snap != nil {
		return snap, nil
	}
	return a.Environment.Snapshot(), nil
}

// traceEvents logs every environment event except ticks at debug level.
func (a *App) traceEvents() (bus.Subscription, error) {
	logger := a.Logger.With(log.String("component", "events"))
	sub, err := a.Bus.SubscribeTopic(world.Topic, bus.AnyEvent, func(ev bus.Event) error {
		if ev.Type() != world.EventTick {
			logger.Debug("Environment event",
				log.String("type", ev.Type()),
				log.String("source", ev.Source()),
				log.Any("data", ev.Data()))
		}
		return nil
	})
	return sub, errors.Wrap(err, "subscribe to environment events")
}
