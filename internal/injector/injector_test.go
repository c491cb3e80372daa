package injector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/envsim/internal/config"
	"github.com/zeusync/envsim/internal/core/events/bus"
	"github.com/zeusync/envsim/internal/core/world"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Terrain.Size = 51
	cfg.Agents = []config.AgentConfig{
		{Name: "mouse", Position: [2]float64{10, 10}},
		{Name: "rat", Position: [2]float64{10, 10}},
	}
	cfg.OdorMarkers = []config.OdorMarkerConfig{
		{Name: "cheese", Position: [2]float64{50, 50}, Radius: 2, Odors: []config.OdorConfig{{Type: "cheese", Strength: 1, Dispersion: 20}}},
	}
	cfg.Simulation.RefreshInterval = 2 * time.Millisecond
	return cfg
}

func TestInitializeApp(t *testing.T) {
	app, err := InitializeApp(testConfig())
	require.NoError(t, err)

	assert.Nil(t, app.Server)
	assert.Len(t, app.Environment.Elements(), 4)
	assert.Equal(t, "Environment tick", app.Updater.Action().Description())
	assert.GreaterOrEqual(t, app.Environment.Stats().PlacementRetries, uint64(1))
}

func TestInitializeAppRejectsUnknownAction(t *testing.T) {
	cfg := testConfig()
	cfg.Updater.Action = "beanshell"
	_, err := InitializeApp(cfg)
	assert.Error(t, err)
}

func TestAppStep(t *testing.T) {
	app, err := InitializeApp(testConfig())
	require.NoError(t, err)

	var ticks int
	_, err = app.Bus.SubscribeTopic(world.Topic, world.EventTick, func(bus.Event) error {
		ticks++
		return nil
	})
	require.NoError(t, err)

	snap, err := app.Step(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Tick)
	assert.Equal(t, 5, ticks)
}

func TestAppRun(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Enabled = true
	cfg.Server.WebSocketAddr = "127.0.0.1:0"
	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Server)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, app.Run(ctx))

	assert.Greater(t, app.Environment.Tick(), uint64(0))
	_, err = app.Environment.Update()
	assert.ErrorIs(t, err, world.ErrEnvironmentClosed)
}
