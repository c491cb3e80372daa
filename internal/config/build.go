package config

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/systems/physics"
	"github.com/zeusync/envsim/internal/core/world"
)

// LoggerConfig converts the log section. The level has already been validated.
func (c Config) LoggerConfig() log.Config {
	level, _ := log.ParseLevel(c.Log.Level)
	return log.Config{Level: level, Encoding: c.Log.Encoding, Output: c.Log.Output}
}

// BuildTerrain creates the terrain described by the terrain section.
func (c Config) BuildTerrain() (*world.Terrain, error) {
	opts := world.TerrainOptions{
		Size:       c.Terrain.Size,
		CellSize:   c.Terrain.CellSize,
		BaseHeight: c.Terrain.BaseHeight,
		Heights:    c.Terrain.Heights,
	}
	if fp := c.Terrain.Footprint; fp != nil {
		sd, err := physics.NewSpatialData(mgl64.Vec3(fp.Center), fp.Radius)
		if err != nil {
			return nil, errors.Wrap(err, "terrain footprint")
		}
		opts.Footprint = &sd
	}
	return world.NewTerrain(opts)
}

// EnvironmentOptions converts the simulation section. Bus and logger are
// supplied by the caller.
func (c Config) EnvironmentOptions() (world.Options, error) {
	boundary, err := world.ParseBoundary(c.Simulation.Boundary)
	if err != nil {
		return world.Options{}, err
	}
	return world.Options{
		Limit:                c.Simulation.Limit,
		Boundary:             boundary,
		MaxPlacementAttempts: c.Simulation.MaxPlacementAttempts,
		Seed:                 c.Simulation.Seed,
		UpdateWorkers:        c.Simulation.UpdateWorkers,
	}, nil
}

func (c Config) BuildAgents() ([]*world.Agent, error) {
	agents := make([]*world.Agent, 0, len(c.Agents))
	for _, a := range c.Agents {
		agent, err := world.NewAgent(world.AgentOptions{
			Name:         a.Name,
			Radius:       a.Radius,
			Speed:        a.Speed,
			TurnRate:     a.TurnRate,
			HeightOffset: a.HeightOffset,
			X:            a.Position[0],
			Z:            a.Position[1],
			Heading:      a.Heading,
			Odors:        odors(a.Odors),
		})
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func (c Config) BuildOdorMarkers() ([]*world.OdorMarker, error) {
	markers := make([]*world.OdorMarker, 0, len(c.OdorMarkers))
	for _, m := range c.OdorMarkers {
		marker, err := world.NewOdorMarker(m.Name,
			mgl64.Vec3{m.Position[0], m.Height, m.Position[1]},
			m.Radius,
			odors(m.Odors)...)
		if err != nil {
			return nil, err
		}
		markers = append(markers, marker)
	}
	return markers, nil
}

func odors(in []OdorConfig) []world.Odor {
	out := make([]world.Odor, len(in))
	for i, o := range in {
		out[i] = world.Odor{Type: o.Type, Strength: o.Strength, Dispersion: o.Dispersion}
	}
	return out
}

// Populate adds the configured odor markers, then the configured agents, to
// env. Agents are placed in file order.
func (c Config) Populate(env *world.Environment) error {
	markers, err := c.BuildOdorMarkers()
	if err != nil {
		return err
	}
	for _, m := range markers {
		if err := env.AddElement(m); err != nil && !errors.Is(err, world.ErrPublish) {
			return errors.Wrapf(err, "add odor marker %q", m.Name())
		}
	}
	agents, err := c.BuildAgents()
	if err != nil {
		return err
	}
	for _, a := range agents {
		if err := env.Add(a); err != nil && !errors.Is(err, world.ErrPublish) {
			return errors.Wrapf(err, "add agent %q", a.Name())
		}
	}
	return nil
}
