package updater

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/world"
)

type fakeEnv struct {
	ticks uint64
	err   error
}

func (f *fakeEnv) Update() (world.TickReport, error) {
	f.ticks++
	return world.TickReport{Tick: f.ticks}, f.err
}

func TestEnvironmentTick(t *testing.T) {
	env := &fakeEnv{}
	a := EnvironmentTick(env)
	require.NoError(t, a.Invoke(context.Background()))
	require.NoError(t, a.Invoke(context.Background()))
	assert.Equal(t, uint64(2), env.ticks)
	assert.NotEmpty(t, a.Description())
	assert.NotEmpty(t, a.LongDescription())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Invoke(ctx), context.Canceled)
	assert.Equal(t, uint64(2), env.ticks)
}

func TestEnvironmentTickLoggedPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	env := &fakeEnv{err: boom}
	a := EnvironmentTickLogged(env, log.NewNop())
	assert.ErrorIs(t, a.Invoke(context.Background()), boom)
	assert.Equal(t, uint64(1), env.ticks)
}

func TestSequenceStopsAtFirstError(t *testing.T) {
	var order []string
	step := func(name string, err error) Action {
		return NewAction(name, name, func(context.Context) error {
			order = append(order, name)
			return err
		})
	}
	boom := errors.New("boom")
	seq := Sequence(step("a", nil), step("b", boom), step("c", nil))

	assert.ErrorIs(t, seq.Invoke(context.Background()), boom)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Contains(t, seq.LongDescription(), "a;")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{ActionEnvironmentTick, ActionEnvironmentTickLogged}, r.Names())

	env := &fakeEnv{}
	a, err := r.Build(ActionEnvironmentTick, env, nil)
	require.NoError(t, err)
	require.NoError(t, a.Invoke(context.Background()))
	assert.Equal(t, uint64(1), env.ticks)

	_, err = r.Build("beanshell", env, nil)
	assert.ErrorIs(t, err, ErrUnknownAction)

	double := func(env Stepper, l log.Log) Action { return Sequence(EnvironmentTick(env), EnvironmentTick(env)) }
	require.NoError(t, r.Register("double-tick", double))
	assert.ErrorIs(t, r.Register("double-tick", double), ErrDuplicateAction)
	assert.True(t, r.Has("double-tick"))

	a, err = r.Build("double-tick", env, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Invoke(context.Background()))
	assert.Equal(t, uint64(3), env.ticks)
}

func TestUpdaterSwapsAction(t *testing.T) {
	u := NewUpdater(nil)
	assert.ErrorIs(t, u.Invoke(context.Background()), ErrNoAction)

	env := &fakeEnv{}
	u.SetAction(EnvironmentTick(env))
	require.NoError(t, u.Invoke(context.Background()))
	assert.Equal(t, uint64(1), env.ticks)
	assert.Equal(t, "Environment tick", u.Action().Description())
}
