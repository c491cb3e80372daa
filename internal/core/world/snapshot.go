package world

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ElementState is the committed state of one element after a tick.
type ElementState struct {
	ID      ElementID  `json:"id"`
	Name    string     `json:"name"`
	Kind    Kind       `json:"kind"`
	Present bool       `json:"present"`
	Center  [3]float64 `json:"center"`
	Radius  float64    `json:"radius"`
	Heading float64    `json:"heading"`
}

// Snapshot is the committed state of every element, in registration order.
type Snapshot struct {
	Tick     uint64         `json:"tick"`
	Time     time.Time      `json:"time"`
	Elements []ElementState `json:"elements"`
}

func captureState(el Element) ElementState {
	st := ElementState{ID: el.ID(), Name: el.Name(), Kind: el.Kind()}
	if sd, ok := el.Committed(); ok {
		st.Present = true
		c := sd.CenterPoint()
		st.Center = [3]float64{c.X(), c.Y(), c.Z()}
		st.Radius = sd.Radius()
	}
	if h, ok := el.(Headed); ok {
		st.Heading = h.Heading()
	}
	return st
}

// Find returns the state of the named element.
func (s *Snapshot) Find(name string) (ElementState, bool) {
	for _, st := range s.Elements {
		if st.Name == name {
			return st, true
		}
	}
	return ElementState{}, false
}

// Digest hashes the tick number and every element's name, kind and committed
// geometry. Element ids and the wall clock are left out so that two runs with
// the same configuration, seed and inputs produce equal digests.
func (s *Snapshot) Digest() uint64 {
	d := xxhash.New()
	var buf [8]byte
	putUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = d.Write(buf[:])
	}
	putFloat := func(v float64) { putUint(math.Float64bits(v)) }

	putUint(s.Tick)
	for _, st := range s.Elements {
		_, _ = d.WriteString(st.Name)
		_, _ = d.Write([]byte{0, byte(st.Kind)})
		if !st.Present {
			_, _ = d.Write([]byte{0})
			continue
		}
		_, _ = d.Write([]byte{1})
		for _, c := range st.Center {
			putFloat(c)
		}
		putFloat(st.Radius)
		putFloat(st.Heading)
	}
	return d.Sum64()
}
