package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/systems/physics"
)

const (
	DefaultAgentRadius   = 1.0
	DefaultAgentSpeed    = 1.0
	DefaultAgentTurnRate = 3.0
)

// BoundaryPolicy decides how a coordinate leaving [0, limit] is brought back.
type BoundaryPolicy uint8

const (
	BoundaryClamp BoundaryPolicy = iota
	// BoundaryWrap maps coordinates into [0, limit) with a Euclidean modulo.
	BoundaryWrap
)

// ParseBoundary maps "clamp" or "wrap" onto a policy. Empty means clamp.
func ParseBoundary(s string) (BoundaryPolicy, error) {
	switch s {
	case "", "clamp":
		return BoundaryClamp, nil
	case "wrap":
		return BoundaryWrap, nil
	default:
		return 0, errors.Wrapf(ErrUnknownBoundary, "%q", s)
	}
}

func (p BoundaryPolicy) String() string {
	if p == BoundaryWrap {
		return "wrap"
	}
	return "clamp"
}

// Apply is idempotent: applying it to its own result is a no-op.
func (p BoundaryPolicy) Apply(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	if p == BoundaryWrap {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		m := math.Mod(v, limit)
		if m < 0 {
			m += limit
		}
		return m
	}
	return clamp(v, 0, limit)
}

// FloorQuery resolves the floor height under a point.
type FloorQuery interface {
	FloorHeight(x, z float64) (float64, error)
}

// AgentOptions configure a new agent. Speed is the distance covered per tick
// at amount 1 and TurnRate the degrees turned per tick at amount 1.
type AgentOptions struct {
	Name         string
	Radius       float64
	Speed        float64
	TurnRate     float64
	HeightOffset float64
	X, Z         float64
	Heading      float64
	Odors        []Odor
}

// Agent is a mobile, terrain-following element steered by its inputs.
//
// Agent methods are not safe for concurrent use. Once added to an
// Environment, drive it through the environment or through its Controls.
type Agent struct {
	id           ElementID
	name         string
	radius       float64
	speed        float64
	turnRate     float64
	heightOffset float64
	odors        []Odor

	controls *Controls
	inputs   inputSet

	floor    FloorQuery
	limit    float64
	boundary BoundaryPolicy
	attached bool

	present   bool
	location  mgl64.Vec3
	heading   float64
	committed physics.SpatialData

	tentLocation mgl64.Vec3
	tentHeading  float64
	tentative    physics.SpatialData

	blocked    bool
	pending    []Collision
	collisions []Collision
}

// NewAgent validates opts and fills zero radius, speed and turn rate with
// the defaults. The agent is placed when added to an Environment.
func NewAgent(opts AgentOptions) (*Agent, error) {
	if opts.Name == "" {
		return nil, errors.Wrap(ErrInvalidAgent, "name is required")
	}
	if opts.Radius == 0 {
		opts.Radius = DefaultAgentRadius
	}
	if opts.Speed == 0 {
		opts.Speed = DefaultAgentSpeed
	}
	if opts.TurnRate == 0 {
		opts.TurnRate = DefaultAgentTurnRate
	}
	if opts.Radius < 0 || math.IsNaN(opts.Radius) {
		return nil, errors.Wrapf(ErrInvalidAgent, "radius %v", opts.Radius)
	}
	if opts.Speed < 0 || opts.TurnRate < 0 {
		return nil, errors.Wrap(ErrInvalidAgent, "speed and turn rate must not be negative")
	}

	a := &Agent{
		id:           NewElementID(),
		name:         opts.Name,
		radius:       opts.Radius,
		speed:        opts.Speed,
		turnRate:     opts.TurnRate,
		heightOffset: opts.HeightOffset,
		odors:        append([]Odor(nil), opts.Odors...),
		controls:     &Controls{},
		location:     mgl64.Vec3{opts.X, 0, opts.Z},
		heading:      normalizeHeading(opts.Heading),
	}
	a.inputs.add(0, a.controls)
	return a, nil
}

func (a *Agent) ID() ElementID { return a.id }
func (a *Agent) Name() string  { return a.name }
func (a *Agent) Kind() Kind    { return KindAgent }

func (a *Agent) Radius() float64 { return a.radius }
func (a *Agent) Limit() float64  { return a.limit }
func (a *Agent) Odors() []Odor   { return a.odors }

// Controls is the default, lowest priority input.
func (a *Agent) Controls() *Controls { return a.controls }

// AddInput registers an input source. Each tick the highest priority input
// that yields commands drives the agent.
func (a *Agent) AddInput(priority int, in Input) {
	a.inputs.add(priority, in)
}

// Location is the committed position.
func (a *Agent) Location() mgl64.Vec3 { return a.location }

// Position is the committed position, as an odor source.
func (a *Agent) Position() mgl64.Vec3 { return a.location }

// Heading is the committed heading in degrees; 0 faces +z.
func (a *Agent) Heading() float64 { return a.heading }

// LastCollisions returns the collisions delivered during the last committed tick.
func (a *Agent) LastCollisions() []Collision {
	return append([]Collision(nil), a.collisions...)
}

func (a *Agent) Tentative() (physics.SpatialData, bool) { return a.tentative, a.present }
func (a *Agent) Committed() (physics.SpatialData, bool) { return a.committed, a.present }

// Update applies the commands of the highest priority input to the
// committed heading and position and settles the result on the terrain.
func (a *Agent) Update() {
	if !a.present {
		return
	}
	a.blocked = false
	a.pending = a.pending[:0]

	heading := a.heading
	var move float64
	for _, cmd := range a.inputs.commands() {
		switch cmd.Action {
		case ActionLeft:
			heading += a.turnRate * cmd.Amount
		case ActionRight:
			heading -= a.turnRate * cmd.Amount
		case ActionForward:
			move += a.speed * cmd.Amount
		case ActionBackward:
			move -= a.speed * cmd.Amount
		}
	}
	heading = normalizeHeading(heading)

	x, z := a.location.X(), a.location.Z()
	if move != 0 {
		rad := mgl64.DegToRad(heading)
		x += math.Sin(rad) * move
		z += math.Cos(rad) * move
	}

	a.tentHeading = heading
	a.tentLocation = a.settle(x, z)
	a.tentative = a.committed.WithCenter(a.tentLocation)
}

// Collision rejects this tick's move; the heading change still commits.
func (a *Agent) Collision(c Collision) {
	a.pending = append(a.pending, c)
	a.blocked = true
}

func (a *Agent) moveRejected() bool { return a.blocked }

// rejectMove keeps the committed position without a collision record.
func (a *Agent) rejectMove() { a.blocked = true }

// Commit promotes the tentative state unless the move was rejected, in which
// case only the heading changes.
func (a *Agent) Commit() {
	if !a.present {
		return
	}
	if !a.blocked {
		a.location = a.tentLocation
		a.committed = a.tentative
	}
	a.heading = a.tentHeading
	a.collisions = append(a.collisions[:0], a.pending...)
	a.pending = a.pending[:0]
	a.blocked = false

	a.tentLocation = a.location
	a.tentative = a.committed
}

func (a *Agent) attach(floor FloorQuery, limit float64, boundary BoundaryPolicy) {
	a.floor = floor
	a.limit = limit
	a.boundary = boundary
	a.attached = true
}

func (a *Agent) detach() {
	a.floor = nil
	a.attached = false
	a.present = false
}

// place moves the agent onto the terrain at (x, z) and commits that state.
func (a *Agent) place(x, z float64) {
	a.location = a.settle(x, z)
	a.committed = physics.MustSpatialData(a.location, a.radius)
	a.present = true
	a.tentLocation = a.location
	a.tentHeading = a.heading
	a.tentative = a.committed
}

// settle bounds (x, z) and lifts the point onto the floor.
func (a *Agent) settle(x, z float64) mgl64.Vec3 {
	x = a.boundary.Apply(x, a.limit)
	z = a.boundary.Apply(z, a.limit)
	var floor float64
	if a.floor != nil {
		// out of bounds queries come back clamped; the height is still usable
		floor, _ = a.floor.FloorHeight(x, z)
	}
	return mgl64.Vec3{x, floor + a.heightOffset, z}
}

func normalizeHeading(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}
