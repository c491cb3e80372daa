package world

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/events/bus"
	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/systems"
	"github.com/zeusync/envsim/internal/core/systems/physics"
	"github.com/zeusync/envsim/pkg/concurrent"
)

const DefaultMaxPlacementAttempts = 1000

// Options configure an Environment.
type Options struct {
	// Limit bounds agent x and z; zero means the terrain extent.
	Limit                float64
	Boundary             BoundaryPolicy
	MaxPlacementAttempts int
	// Seed drives placement relocation.
	Seed uint64
	// UpdateWorkers spreads the update phase over this many goroutines.
	// Element updates only read their own state, so the result does not
	// depend on it. Zero or one updates inline.
	UpdateWorkers int

	Bus    bus.EventBus
	Logger log.Log
}

// TickReport summarizes one tick. Yielded counts moves rejected because they
// ended inside the committed sphere of an agent staying in place.
type TickReport struct {
	Tick            uint64
	Elements        int
	PairsTested     int
	Collisions      int
	InvalidGeometry int
	Yielded         int
	Duration        time.Duration
}

// Stats accumulates counters over the environment lifetime.
type Stats struct {
	Ticks             uint64
	Collisions        uint64
	InvalidGeometry   uint64
	OutOfBounds       uint64
	PlacementRetries  uint64
	PlacementFailures uint64
}

type registeredView struct {
	id   uint64
	view View
}

// Environment owns the elements, the views and the odor registry, and runs
// the tick: update, pairwise detection, collision dispatch, commit, view
// notification.
//
// All structural mutation and every tick are serialized. The update phase and
// view notification run without the environment lock, so inputs and views
// may call the read methods, SetIntent and AddView. Calling Update, Add,
// AddElement, Remove or AddInput from an input or a view deadlocks.
type Environment struct {
	tickMu sync.Mutex
	mu     sync.Mutex

	elements []Element
	index    map[ElementID]int
	agents   map[string]*Agent
	views    []registeredView
	viewSeq  uint64

	terrain *Terrain
	odors   *Odors
	bus     bus.EventBus
	logger  log.Log
	rng     *rand.Rand

	limit         float64
	boundary      BoundaryPolicy
	maxAttempts   int
	updateWorkers int

	tick    uint64
	state   systems.StateIdentity
	metrics systems.Metrics
	stats   Stats

	outOfBounds atomic.Uint64
	last        atomic.Pointer[Snapshot]
}

var _ systems.System = (*Environment)(nil)

// New creates an environment whose first element is terrain.
func New(terrain *Terrain, opts Options) (*Environment, error) {
	if terrain == nil {
		return nil, errors.Wrap(ErrInvalidTerrain, "terrain is required")
	}
	if opts.Limit == 0 {
		opts.Limit = terrain.Extent()
	}
	if opts.Limit < 0 {
		return nil, errors.Errorf("environment limit must not be negative: %v", opts.Limit)
	}
	if opts.MaxPlacementAttempts <= 0 {
		opts.MaxPlacementAttempts = DefaultMaxPlacementAttempts
	}
	if opts.Logger == nil {
		opts.Logger = log.Provide()
	}

	e := &Environment{
		index:       make(map[ElementID]int),
		agents:      make(map[string]*Agent),
		terrain:     terrain,
		odors:       NewOdors(),
		bus:         opts.Bus,
		logger:      opts.Logger.With(log.String("component", "environment")),
		rng:         rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		limit:       opts.Limit,
		boundary:    opts.Boundary,
		maxAttempts: opts.MaxPlacementAttempts,

		updateWorkers: opts.UpdateWorkers,
	}
	e.registerLocked(terrain)
	return e, nil
}

func (e *Environment) Name() string { return "environment" }

func (e *Environment) Description() string {
	return "fixed-step agent environment with pairwise sphere collision"
}

func (e *Environment) Initialize(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closingLocked() {
		return ErrEnvironmentClosed
	}
	if e.bus != nil {
		if err := e.bus.CreateTopic(Topic); err != nil {
			return errors.Wrap(err, "create environment topic")
		}
	}
	e.state = systems.StateRunning
	e.logger.Info("Environment initialized",
		log.Int("elements", len(e.elements)),
		log.Float64("limit", e.limit),
		log.Stringer("boundary", e.boundary))
	return nil
}

// Shutdown waits for an in-flight tick to finish and refuses further ticks.
// While it waits the state is StateShuttingDown.
func (e *Environment) Shutdown(_ context.Context) error {
	e.mu.Lock()
	if !e.closingLocked() {
		e.state = systems.StateShuttingDown
	}
	e.mu.Unlock()

	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = systems.StateShutdown
	e.logger.Info("Environment shut down", log.Uint64("ticks", e.tick))
	return nil
}

func (e *Environment) GetState() systems.StateIdentity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Environment) GetMetrics() systems.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

func (e *Environment) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.OutOfBounds = e.outOfBounds.Load()
	return s
}

// FixedUpdate runs one tick unless ctx is already done.
func (e *Environment) FixedUpdate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.Update()
	return err
}

// Update runs one full tick. The returned report is valid even when err
// carries ErrPublish.
func (e *Environment) Update() (TickReport, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	if e.closingLocked() {
		e.mu.Unlock()
		return TickReport{}, ErrEnvironmentClosed
	}
	start := time.Now()
	e.tick++
	// structural mutation holds tickMu, so elements is stable for the tick
	elements := e.elements
	report := TickReport{Tick: e.tick, Elements: len(elements)}
	e.mu.Unlock()

	// Updates only write tentative state, which nothing outside the tick
	// reads, so inputs may query the environment here.
	concurrent.Batch(elements, e.updateWorkers, func(chunk []Element) {
		for _, el := range chunk {
			el.Update()
		}
	})

	e.mu.Lock()
	collisions := e.detectLocked(elements, &report)
	report.Yielded = e.yieldLocked(elements)
	for _, el := range elements {
		el.Commit()
	}

	snap := e.snapshotLocked(start)
	e.last.Store(snap)
	views := make([]View, len(e.views))
	for i, rv := range e.views {
		views[i] = rv.view
	}

	report.Duration = time.Since(start)
	e.metrics.Observe(start, report.Duration, report.Elements, nil)
	e.stats.Ticks++
	e.stats.Collisions += uint64(report.Collisions)
	e.stats.InvalidGeometry += uint64(report.InvalidGeometry)
	e.mu.Unlock()

	for _, v := range views {
		v.UpdateView()
	}

	events := make([]bus.Event, 0, len(collisions)+1)
	for _, c := range collisions {
		events = append(events, bus.NewEvent(EventCollision, e.Name(), c, nil))
	}
	events = append(events, bus.NewEvent(EventTick, e.Name(), TickEvent{Report: report, Snapshot: snap}, nil))
	return report, e.publish(events...)
}

// detectLocked tests every unordered pair with tentative data once and
// delivers a collision record to both sides of each overlapping pair.
func (e *Environment) detectLocked(elements []Element, report *TickReport) []CollisionEvent {
	var out []CollisionEvent
	for i := 0; i < len(elements); i++ {
		a := elements[i]
		aData, ok := a.Tentative()
		if !ok {
			continue
		}
		for j := i + 1; j < len(elements); j++ {
			b := elements[j]
			bData, ok := b.Tentative()
			if !ok {
				continue
			}
			report.PairsTested++
			if !aData.Intersects(bData) {
				continue
			}
			pointA, pointB, err := physics.ImpactPoints(aData, bData)
			if err != nil {
				report.InvalidGeometry++
				e.logger.Debug("Skipping collision response",
					log.String("a", a.Name()),
					log.String("b", b.Name()),
					log.Error(err))
				continue
			}
			a.Collision(Collision{Other: b, Point: pointA})
			b.Collision(Collision{Other: a, Point: pointB})
			report.Collisions++
			out = append(out, CollisionEvent{
				Tick:   report.Tick,
				A:      a.ID(),
				B:      b.ID(),
				PointA: pointA,
				PointB: pointB,
			})
		}
	}
	return out
}

// mover is an element whose commit can reject its tentative move.
type mover interface {
	Element
	moveRejected() bool
	rejectMove()
}

// yieldLocked rejects every move that would end inside the committed sphere
// of a mover staying in place, repeating until no further move is rejected.
// A stayed mover keeps its committed sphere, so detection against its
// tentative sphere alone cannot keep that spot free.
func (e *Environment) yieldLocked(elements []Element) int {
	var staying, moving []mover
	for _, el := range elements {
		m, ok := el.(mover)
		if !ok {
			continue
		}
		if _, present := m.Tentative(); !present {
			continue
		}
		if m.moveRejected() {
			staying = append(staying, m)
		} else {
			moving = append(moving, m)
		}
	}

	yielded := 0
	for len(staying) > 0 && len(moving) > 0 {
		var next []mover
		kept := moving[:0]
		for _, m := range moving {
			if tent, _ := m.Tentative(); overlapsCommitted(tent, staying) {
				m.rejectMove()
				next = append(next, m)
				yielded++
				continue
			}
			kept = append(kept, m)
		}
		moving, staying = kept, next
	}
	return yielded
}

func overlapsCommitted(sd physics.SpatialData, others []mover) bool {
	for _, o := range others {
		if c, ok := o.Committed(); ok && sd.Intersects(c) {
			return true
		}
	}
	return false
}

// Add places agent on the terrain. The configured position is tried first;
// while the agent overlaps any element it is moved to a uniformly random
// (x, z) within the limit. After MaxPlacementAttempts overlapping attempts
// the agent is not added and ErrPlacementFailed is returned.
func (e *Environment) Add(agent *Agent) error {
	if agent == nil {
		return ErrNilElement
	}

	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.Lock()
	if err := e.checkAddLocked(agent); err != nil {
		e.mu.Unlock()
		return err
	}
	if _, dup := e.agents[agent.Name()]; dup {
		e.mu.Unlock()
		return errors.Wrapf(ErrDuplicateName, "agent %q", agent.Name())
	}
	if agent.attached {
		e.mu.Unlock()
		return errors.Wrapf(ErrAlreadyAttached, "agent %q", agent.Name())
	}

	agent.attach(e, e.limit, e.boundary)
	x, z := agent.Location().X(), agent.Location().Z()
	attempts := 0
	for {
		attempts++
		agent.place(x, z)
		if e.freeLocked(agent) {
			break
		}
		if attempts >= e.maxAttempts {
			agent.detach()
			e.stats.PlacementFailures++
			e.mu.Unlock()
			e.logger.Warn("Agent placement failed",
				log.String("agent", agent.Name()),
				log.Int("attempts", attempts))
			return errors.Wrapf(ErrPlacementFailed, "agent %q after %d attempts", agent.Name(), attempts)
		}
		e.stats.PlacementRetries++
		x, z = e.rng.Float64()*e.limit, e.rng.Float64()*e.limit
	}

	e.registerLocked(agent)
	e.agents[agent.Name()] = agent
	added := e.odors.AddOdors(agent)
	position := agent.Location()
	e.mu.Unlock()

	e.logger.Debug("Agent placed",
		log.String("agent", agent.Name()),
		log.Int("attempts", attempts),
		log.Float64("x", position.X()),
		log.Float64("z", position.Z()))

	events := []bus.Event{bus.NewEvent(EventAgentPlaced, e.Name(), PlacementEvent{
		Agent:    agent.ID(),
		Name:     agent.Name(),
		Attempts: attempts,
		Position: position,
	}, nil)}
	return e.publish(append(events, e.odorEvents(agent.ID(), added)...)...)
}

// AddElement registers a non-agent element such as an odor marker. Agents are
// routed through Add.
func (e *Environment) AddElement(el Element) error {
	if el == nil {
		return ErrNilElement
	}
	if agent, ok := el.(*Agent); ok {
		return e.Add(agent)
	}

	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.Lock()
	if err := e.checkAddLocked(el); err != nil {
		e.mu.Unlock()
		return err
	}
	e.registerLocked(el)
	var added []string
	if src, ok := el.(OdorSource); ok {
		added = e.odors.AddOdors(src)
	}
	e.mu.Unlock()

	return e.publish(e.odorEvents(el.ID(), added)...)
}

// Remove unregisters an element and its odors. Terrain cannot be removed.
func (e *Environment) Remove(id ElementID) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.Lock()
	i, ok := e.index[id]
	if !ok {
		e.mu.Unlock()
		return errors.Wrapf(ErrElementNotFound, "id %s", id)
	}
	el := e.elements[i]
	if el.Kind() == KindTerrain {
		e.mu.Unlock()
		return ErrTerrainRemoval
	}

	e.elements = append(e.elements[:i:i], e.elements[i+1:]...)
	delete(e.index, id)
	for j := i; j < len(e.elements); j++ {
		e.index[e.elements[j].ID()] = j
	}
	if agent, ok := el.(*Agent); ok {
		delete(e.agents, agent.Name())
		agent.detach()
	}
	e.odors.Remove(id)
	e.mu.Unlock()

	return e.publish(bus.NewEvent(EventElementRemoved, e.Name(), RemovalEvent{Element: id, Name: el.Name()}, nil))
}

// AddView registers a view and returns a function that unregisters it.
func (e *Environment) AddView(v View) (func(), error) {
	if v == nil {
		return nil, ErrNilView
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.viewSeq++
	id := e.viewSeq
	e.views = append(e.views, registeredView{id: id, view: v})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, rv := range e.views {
			if rv.id == id {
				e.views = append(e.views[:i:i], e.views[i+1:]...)
				return
			}
		}
	}, nil
}

// SetIntent switches one movement intent of the named agent.
func (e *Environment) SetIntent(agentName string, action Action, active bool) error {
	agent, ok := e.Agent(agentName)
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "%q", agentName)
	}
	agent.Controls().Set(action, active)
	return nil
}

// AddInput attaches an input source to the named agent.
func (e *Environment) AddInput(agentName string, priority int, in Input) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	agent, ok := e.agents[agentName]
	if !ok {
		return errors.Wrapf(ErrUnknownAgent, "%q", agentName)
	}
	agent.AddInput(priority, in)
	return nil
}

func (e *Environment) Agent(name string) (*Agent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.agents[name]
	return a, ok
}

func (e *Environment) Element(id ElementID) (Element, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[id]
	if !ok {
		return nil, false
	}
	return e.elements[i], true
}

// Elements returns the registered elements in registration order.
func (e *Environment) Elements() []Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Element(nil), e.elements...)
}

func (e *Environment) Terrain() *Terrain { return e.terrain }
func (e *Environment) Odors() *Odors     { return e.odors }
func (e *Environment) Limit() float64    { return e.limit }

// OdorTypes lists every odor type emitted in the environment.
func (e *Environment) OdorTypes() []string { return e.odors.Types() }

// Smell is the intensity of odorType perceived by the named agent, excluding
// its own emissions.
func (e *Environment) Smell(agentName, odorType string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	agent, ok := e.agents[agentName]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownAgent, "%q", agentName)
	}
	return e.odors.Smell(odorType, agent.Location(), agent.ID()), nil
}

// FloorHeight queries the terrain. Out of bounds queries are counted and
// answered with the clamped height.
func (e *Environment) FloorHeight(x, z float64) (float64, error) {
	h, err := e.terrain.FloorHeight(x, z)
	if errors.Is(err, ErrOutOfBounds) {
		e.outOfBounds.Add(1)
	}
	return h, err
}

// Tick returns the number of completed ticks.
func (e *Environment) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Snapshot captures the current committed state.
func (e *Environment) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(time.Now())
}

// LastSnapshot returns the snapshot taken at the end of the last tick, or nil
// before the first tick. It never blocks.
func (e *Environment) LastSnapshot() *Snapshot { return e.last.Load() }

func (e *Environment) snapshotLocked(at time.Time) *Snapshot {
	s := &Snapshot{Tick: e.tick, Time: at, Elements: make([]ElementState, len(e.elements))}
	for i, el := range e.elements {
		s.Elements[i] = captureState(el)
	}
	return s
}

func (e *Environment) closingLocked() bool {
	return e.state == systems.StateShuttingDown || e.state == systems.StateShutdown
}

func (e *Environment) checkAddLocked(el Element) error {
	if e.closingLocked() {
		return ErrEnvironmentClosed
	}
	if _, dup := e.index[el.ID()]; dup {
		return errors.Wrapf(ErrDuplicateElement, "%s %q", el.Kind(), el.Name())
	}
	return nil
}

func (e *Environment) registerLocked(el Element) {
	e.index[el.ID()] = len(e.elements)
	e.elements = append(e.elements, el)
}

// freeLocked reports whether agent's tentative sphere overlaps no other
// element's tentative sphere.
func (e *Environment) freeLocked(agent *Agent) bool {
	data, ok := agent.Tentative()
	if !ok {
		return true
	}
	for _, other := range e.elements {
		if other.ID() == agent.ID() {
			continue
		}
		otherData, ok := other.Tentative()
		if !ok {
			continue
		}
		if data.Intersects(otherData) {
			return false
		}
	}
	return true
}

func (e *Environment) odorEvents(source ElementID, types []string) []bus.Event {
	events := make([]bus.Event, 0, len(types))
	for _, typ := range types {
		events = append(events, bus.NewEvent(EventOdorRegistered, e.Name(), OdorEvent{Type: typ, Source: source}, nil))
	}
	return events
}

func (e *Environment) publish(events ...bus.Event) error {
	if e.bus == nil || len(events) == 0 {
		return nil
	}
	var errs []error
	for _, ev := range events {
		if err := e.bus.PublishToTopic(Topic, ev); err != nil {
			errs = append(errs, errors.Wrapf(err, "publish %s", ev.Type()))
		}
	}
	return publishError(errs...)
}
