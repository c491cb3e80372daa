package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/world"
)

// Config is the whole application configuration, usually read from YAML.
type Config struct {
	Log         LogConfig          `json:"log" yaml:"log"`
	Simulation  SimulationConfig   `json:"simulation" yaml:"simulation"`
	Terrain     TerrainConfig      `json:"terrain" yaml:"terrain"`
	Agents      []AgentConfig      `json:"agents,omitempty" yaml:"agents,omitempty"`
	OdorMarkers []OdorMarkerConfig `json:"odor_markers,omitempty" yaml:"odor_markers,omitempty"`
	Updater     UpdaterConfig      `json:"updater" yaml:"updater"`
	Server      ServerConfig       `json:"server" yaml:"server"`
}

type LogConfig struct {
	Level    string `json:"level" yaml:"level"`
	Encoding string `json:"encoding" yaml:"encoding"`
	// Output defaults to stderr. Accepts zap sink paths such as a file name.
	Output []string `json:"output,omitempty" yaml:"output,omitempty"`
}

type SimulationConfig struct {
	RefreshInterval      time.Duration `json:"refresh_interval" yaml:"refresh_interval"`
	Seed                 uint64        `json:"seed" yaml:"seed"`
	MaxPlacementAttempts int           `json:"max_placement_attempts" yaml:"max_placement_attempts"`
	Boundary             string        `json:"boundary" yaml:"boundary"`
	// Limit overrides the terrain extent as the agent bound.
	Limit float64 `json:"limit,omitempty" yaml:"limit,omitempty"`
	// UpdateWorkers parallelizes the update phase of large worlds.
	UpdateWorkers int `json:"update_workers,omitempty" yaml:"update_workers,omitempty"`
}

type TerrainConfig struct {
	Size       int         `json:"size" yaml:"size"`
	CellSize   float64     `json:"cell_size" yaml:"cell_size"`
	BaseHeight float64     `json:"base_height" yaml:"base_height"`
	Heights    [][]float64 `json:"heights,omitempty" yaml:"heights,omitempty"`
	// Footprint, when set, makes the terrain a collision participant.
	Footprint *SphereConfig `json:"footprint,omitempty" yaml:"footprint,omitempty"`
}

type SphereConfig struct {
	Center [3]float64 `json:"center" yaml:"center"`
	Radius float64    `json:"radius" yaml:"radius"`
}

type OdorConfig struct {
	Type       string  `json:"type" yaml:"type"`
	Strength   float64 `json:"strength" yaml:"strength"`
	Dispersion float64 `json:"dispersion" yaml:"dispersion"`
}

type AgentConfig struct {
	Name         string       `json:"name" yaml:"name"`
	Radius       float64      `json:"radius,omitempty" yaml:"radius,omitempty"`
	Speed        float64      `json:"speed,omitempty" yaml:"speed,omitempty"`
	TurnRate     float64      `json:"turn_rate,omitempty" yaml:"turn_rate,omitempty"`
	HeightOffset float64      `json:"height_offset,omitempty" yaml:"height_offset,omitempty"`
	Position     [2]float64   `json:"position" yaml:"position"`
	Heading      float64      `json:"heading,omitempty" yaml:"heading,omitempty"`
	Odors        []OdorConfig `json:"odors,omitempty" yaml:"odors,omitempty"`
}

type OdorMarkerConfig struct {
	Name     string       `json:"name" yaml:"name"`
	Position [2]float64   `json:"position" yaml:"position"`
	Height   float64      `json:"height,omitempty" yaml:"height,omitempty"`
	Radius   float64      `json:"radius" yaml:"radius"`
	Odors    []OdorConfig `json:"odors,omitempty" yaml:"odors,omitempty"`
}

type UpdaterConfig struct {
	Action string `json:"action" yaml:"action"`
}

type ServerConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	WebSocketAddr  string `json:"websocket_addr" yaml:"websocket_addr"`
	QUICAddr       string `json:"quic_addr,omitempty" yaml:"quic_addr,omitempty"`
	BroadcastEvery int    `json:"broadcast_every" yaml:"broadcast_every"`
	ControlToken   string `json:"control_token,omitempty" yaml:"control_token,omitempty"`
}

// Default returns a configuration with every field set to its default.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Encoding: "json"},
		Simulation: SimulationConfig{
			RefreshInterval:      10 * time.Millisecond,
			Seed:                 1,
			MaxPlacementAttempts: world.DefaultMaxPlacementAttempts,
			Boundary:             world.BoundaryClamp.String(),
		},
		Terrain: TerrainConfig{
			Size:     world.DefaultTerrainSize,
			CellSize: world.DefaultTerrainCellSize,
		},
		Updater: UpdaterConfig{Action: "environment-tick"},
		Server: ServerConfig{
			WebSocketAddr:  "127.0.0.1:8080",
			BroadcastEvery: 10,
		},
	}
}

// Load reads and validates the YAML file at path on top of Default.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r on top of Default and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(ErrInvalidConfig, "decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem found, joined into one ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if _, ok := log.ParseLevel(c.Log.Level); !ok {
		add("log.level %q is not one of debug, info, warn, error, fatal", c.Log.Level)
	}
	if c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		add("log.encoding %q is not json or console", c.Log.Encoding)
	}

	if c.Simulation.RefreshInterval <= 0 {
		add("simulation.refresh_interval must be positive")
	}
	if c.Simulation.MaxPlacementAttempts <= 0 {
		add("simulation.max_placement_attempts must be positive")
	}
	if _, err := world.ParseBoundary(c.Simulation.Boundary); err != nil {
		add("simulation.boundary %q is not clamp or wrap", c.Simulation.Boundary)
	}
	if c.Simulation.Limit < 0 {
		add("simulation.limit must not be negative")
	}
	if c.Simulation.UpdateWorkers < 0 {
		add("simulation.update_workers must not be negative")
	}

	if c.Terrain.Size < 2 {
		add("terrain.size must be at least 2")
	}
	if c.Terrain.CellSize <= 0 {
		add("terrain.cell_size must be positive")
	}
	if n := len(c.Terrain.Heights); n > 0 && n != c.Terrain.Size {
		add("terrain.heights has %d rows, want %d", n, c.Terrain.Size)
	}
	if fp := c.Terrain.Footprint; fp != nil && fp.Radius < 0 {
		add("terrain.footprint.radius must not be negative")
	}

	names := make(map[string]struct{})
	for i, a := range c.Agents {
		if a.Name == "" {
			add("agents[%d].name is required", i)
		} else if _, dup := names[a.Name]; dup {
			add("agents[%d].name %q is used twice", i, a.Name)
		}
		names[a.Name] = struct{}{}
		if a.Radius < 0 || a.Speed < 0 || a.TurnRate < 0 {
			add("agents[%d] radius, speed and turn_rate must not be negative", i)
		}
		validateOdors(fmt.Sprintf("agents[%d]", i), a.Odors, add)
	}
	for i, m := range c.OdorMarkers {
		if m.Name == "" {
			add("odor_markers[%d].name is required", i)
		}
		if m.Radius < 0 {
			add("odor_markers[%d].radius must not be negative", i)
		}
		validateOdors(fmt.Sprintf("odor_markers[%d]", i), m.Odors, add)
	}

	if c.Updater.Action == "" {
		add("updater.action is required")
	}
	if c.Server.Enabled {
		if c.Server.WebSocketAddr == "" && c.Server.QUICAddr == "" {
			add("server needs websocket_addr or quic_addr when enabled")
		}
		if c.Server.BroadcastEvery <= 0 {
			add("server.broadcast_every must be positive")
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
}

func validateOdors(prefix string, odors []OdorConfig, add func(string, ...any)) {
	for j, o := range odors {
		if o.Type == "" {
			add("%s.odors[%d].type is required", prefix, j)
		}
		if o.Dispersion < 0 {
			add("%s.odors[%d].dispersion must not be negative", prefix, j)
		}
	}
}
