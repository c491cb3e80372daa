package world

import (
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/systems/physics"
)

// Odor is a scent emitted by an element. Intensity falls off as
// Strength * exp(-distance / Dispersion).
type Odor struct {
	Type       string
	Strength   float64
	Dispersion float64
}

// Intensity returns the perceived strength at distance.
func (o Odor) Intensity(distance float64) float64 {
	if o.Dispersion <= 0 {
		if distance == 0 {
			return o.Strength
		}
		return 0
	}
	return o.Strength * math.Exp(-distance/o.Dispersion)
}

// OdorSource is an element that emits odors from its committed position.
type OdorSource interface {
	ID() ElementID
	Odors() []Odor
	Position() mgl64.Vec3
}

// Odors is the registry of odor emitters, keyed by odor type.
type Odors struct {
	mu      sync.RWMutex
	sources map[string]map[ElementID]OdorSource
}

func NewOdors() *Odors {
	return &Odors{sources: make(map[string]map[ElementID]OdorSource)}
}

// AddOdors registers every odor src emits and returns the types that were not
// known before.
func (o *Odors) AddOdors(src OdorSource) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var added []string
	for _, odor := range src.Odors() {
		m, ok := o.sources[odor.Type]
		if !ok {
			m = make(map[ElementID]OdorSource)
			o.sources[odor.Type] = m
			added = append(added, odor.Type)
		}
		m[src.ID()] = src
	}
	return added
}

// Remove drops id from every odor type. Types left without emitters are
// forgotten.
func (o *Odors) Remove(id ElementID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for typ, m := range o.sources {
		delete(m, id)
		if len(m) == 0 {
			delete(o.sources, typ)
		}
	}
}

// Types lists the known odor types in lexical order.
func (o *Odors) Types() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.sources))
	for typ := range o.sources {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Sources lists the emitters of odorType ordered by id.
func (o *Odors) Sources(odorType string) []OdorSource {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m := o.sources[odorType]
	out := make([]OdorSource, 0, len(m))
	for _, src := range m {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID().String() < out[j].ID().String() })
	return out
}

// Smell sums the intensity of odorType at position over every emitter except
// exclude.
func (o *Odors) Smell(odorType string, at mgl64.Vec3, exclude ElementID) float64 {
	var total float64
	for _, src := range o.Sources(odorType) {
		if src.ID() == exclude {
			continue
		}
		d := physics.Distance(at, src.Position())
		for _, odor := range src.Odors() {
			if odor.Type == odorType {
				total += odor.Intensity(d)
			}
		}
	}
	return total
}

// OdorMarker is a static sphere that emits odors, e.g. a food source.
type OdorMarker struct {
	staticElement
	odors []Odor
}

func NewOdorMarker(name string, position mgl64.Vec3, radius float64, odors ...Odor) (*OdorMarker, error) {
	sphere, err := physics.NewSpatialData(position, radius)
	if err != nil {
		return nil, errors.Wrapf(err, "odor marker %q", name)
	}
	return &OdorMarker{
		staticElement: staticElement{
			id:      NewElementID(),
			name:    name,
			kind:    KindOdorMarker,
			sphere:  sphere,
			present: true,
		},
		odors: append([]Odor(nil), odors...),
	}, nil
}

func (m *OdorMarker) Odors() []Odor        { return m.odors }
func (m *OdorMarker) Position() mgl64.Vec3 { return m.sphere.CenterPoint() }
