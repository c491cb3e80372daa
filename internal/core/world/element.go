package world

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/systems/physics"
)

// ElementID identifies an element for its whole lifetime.
type ElementID uuid.UUID

// NewElementID returns a random ID.
func NewElementID() ElementID { return ElementID(uuid.New()) }

func (id ElementID) String() string { return uuid.UUID(id).String() }

func (id ElementID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ElementID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// ParseElementID parses the canonical uuid form.
func ParseElementID(s string) (ElementID, error) {
	u, err := uuid.Parse(s)
	return ElementID(u), err
}

// Kind tells terrain, odor markers and agents apart in snapshots.
type Kind uint8

const (
	KindTerrain Kind = iota + 1
	KindOdorMarker
	KindAgent
)

func (k Kind) String() string {
	switch k {
	case KindTerrain:
		return "terrain"
	case KindOdorMarker:
		return "odor_marker"
	case KindAgent:
		return "agent"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for _, c := range []Kind{KindTerrain, KindOdorMarker, KindAgent} {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return errors.Errorf("unknown element kind %q", b)
}

// Element is a spatial participant of the simulation. Each tick the
// environment calls Update, then Collision once per overlapping pair the
// element is part of, then Commit.
//
// Update computes a new tentative state from committed state and pending
// input only. Tentative reports false when the element takes no part in the
// collision scan. Commit promotes tentative to committed, except that an
// agent whose move was rejected keeps its committed position. Commit must be
// idempotent when called again without an Update in between.
type Element interface {
	ID() ElementID
	Name() string
	Kind() Kind

	Update()
	Tentative() (physics.SpatialData, bool)
	Committed() (physics.SpatialData, bool)
	Collision(Collision)
	Commit()
}

// Collision is delivered to one participant of an overlapping pair. Other is
// a back-reference and Point the extrapolated impact point.
type Collision struct {
	Other Element
	Point mgl64.Vec3
}

// Headed is implemented by elements with an orientation.
type Headed interface {
	Heading() float64
}

// View is notified once per tick after commit.
type View interface {
	UpdateView()
}

// ViewFunc adapts a function to View.
type ViewFunc func()

func (f ViewFunc) UpdateView() { f() }

// staticElement never moves: update, collision and commit are no-ops.
type staticElement struct {
	id      ElementID
	name    string
	kind    Kind
	sphere  physics.SpatialData
	present bool
}

func (s *staticElement) ID() ElementID { return s.id }
func (s *staticElement) Name() string  { return s.name }
func (s *staticElement) Kind() Kind    { return s.kind }
func (s *staticElement) Update()       {}
func (s *staticElement) Commit()       {}

func (s *staticElement) Collision(Collision) {}

func (s *staticElement) Tentative() (physics.SpatialData, bool) { return s.sphere, s.present }
func (s *staticElement) Committed() (physics.SpatialData, bool) { return s.sphere, s.present }
