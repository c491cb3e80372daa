package world

import "github.com/go-gl/mathgl/mgl64"

// Topic is the bus topic the environment publishes into.
const Topic = "environment"

// Event types published on Topic.
const (
	EventTick           = "tick"
	EventCollision      = "collision"
	EventAgentPlaced    = "agent.placed"
	EventOdorRegistered = "odor.registered"
	EventElementRemoved = "element.removed"
)

// TickEvent is the payload of EventTick.
type TickEvent struct {
	Report   TickReport
	Snapshot *Snapshot
}

// CollisionEvent is the payload of EventCollision.
type CollisionEvent struct {
	Tick   uint64
	A, B   ElementID
	PointA mgl64.Vec3
	PointB mgl64.Vec3
}

// PlacementEvent is the payload of EventAgentPlaced.
type PlacementEvent struct {
	Agent    ElementID
	Name     string
	Attempts int
	Position mgl64.Vec3
}

// OdorEvent is the payload of EventOdorRegistered.
type OdorEvent struct {
	Type   string
	Source ElementID
}

// RemovalEvent is the payload of EventElementRemoved.
type RemovalEvent struct {
	Element ElementID
	Name    string
}
