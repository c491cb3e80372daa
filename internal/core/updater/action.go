package updater

import (
	"context"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/world"
)

// Action is one unit of work the updater performs per trigger.
type Action interface {
	Invoke(ctx context.Context) error
	// Description is a short label, LongDescription a sentence for help output.
	Description() string
	LongDescription() string
}

type funcAction struct {
	description     string
	longDescription string
	fn              func(ctx context.Context) error
}

// NewAction builds an Action from a function.
func NewAction(description, longDescription string, fn func(ctx context.Context) error) Action {
	return &funcAction{description: description, longDescription: longDescription, fn: fn}
}

func (a *funcAction) Invoke(ctx context.Context) error { return a.fn(ctx) }
func (a *funcAction) Description() string              { return a.description }
func (a *funcAction) LongDescription() string          { return a.longDescription }

// Stepper runs one environment tick.
type Stepper interface {
	Update() (world.TickReport, error)
}

// EnvironmentTick advances env by one tick per invocation.
func EnvironmentTick(env Stepper) Action {
	return NewAction("Environment tick",
		"Advance the environment by one tick: update, detect collisions, commit and notify views.",
		func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := env.Update()
			return err
		})
}

// EnvironmentTickLogged is EnvironmentTick plus an info log line per tick.
func EnvironmentTickLogged(env Stepper, logger log.Log) Action {
	return NewAction("Environment tick (logged)",
		"Advance the environment by one tick and log the tick report.",
		func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, err := env.Update()
			logger.WithContext(ctx).Info("Tick completed",
				log.Uint64("tick", report.Tick),
				log.Int("elements", report.Elements),
				log.Int("collisions", report.Collisions),
				log.Int("invalid_geometry", report.InvalidGeometry),
				log.Duration("took", report.Duration))
			return err
		})
}

// Sequence invokes actions in order and stops at the first error.
func Sequence(actions ...Action) Action {
	long := "Run in order:"
	for _, a := range actions {
		long += " " + a.Description() + ";"
	}
	return NewAction("Sequence", long, func(ctx context.Context) error {
		for _, a := range actions {
			if err := a.Invoke(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}
