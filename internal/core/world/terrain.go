package world

import (
	"math"

	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/systems/physics"
)

const (
	DefaultTerrainSize     = 256
	DefaultTerrainCellSize = 2.0
)

// TerrainOptions describes the height field. Heights, when given, must hold
// Size rows of Size samples indexed [z][x]; they are offsets on top of
// BaseHeight.
type TerrainOptions struct {
	Size       int
	CellSize   float64
	BaseHeight float64
	Heights    [][]float64
	// Footprint makes the terrain take part in the collision scan.
	Footprint *physics.SpatialData
}

// Terrain is the static floor every agent follows.
type Terrain struct {
	staticElement
	size     int
	cellSize float64
	base     float64
	heights  []float64
}

func NewTerrain(opts TerrainOptions) (*Terrain, error) {
	if opts.Size == 0 {
		opts.Size = DefaultTerrainSize
	}
	if opts.CellSize == 0 {
		opts.CellSize = DefaultTerrainCellSize
	}
	if opts.Size < 2 {
		return nil, errors.Wrapf(ErrInvalidTerrain, "size %d, need at least 2 samples", opts.Size)
	}
	if opts.CellSize < 0 || math.IsNaN(opts.CellSize) || math.IsInf(opts.CellSize, 0) {
		return nil, errors.Wrapf(ErrInvalidTerrain, "cell size %v", opts.CellSize)
	}

	t := &Terrain{
		staticElement: staticElement{
			id:   NewElementID(),
			name: "terrain",
			kind: KindTerrain,
		},
		size:     opts.Size,
		cellSize: opts.CellSize,
		base:     opts.BaseHeight,
	}
	if opts.Footprint != nil {
		t.sphere = *opts.Footprint
		t.present = true
	}

	if len(opts.Heights) > 0 {
		if len(opts.Heights) != opts.Size {
			return nil, errors.Wrapf(ErrInvalidTerrain, "%d height rows for size %d", len(opts.Heights), opts.Size)
		}
		t.heights = make([]float64, 0, opts.Size*opts.Size)
		for z, row := range opts.Heights {
			if len(row) != opts.Size {
				return nil, errors.Wrapf(ErrInvalidTerrain, "row %d has %d samples", z, len(row))
			}
			t.heights = append(t.heights, row...)
		}
	}
	return t, nil
}

// Extent is the side length of the square the terrain covers, starting at the
// origin.
func (t *Terrain) Extent() float64 { return float64(t.size-1) * t.cellSize }

func (t *Terrain) Size() int { return t.size }

// FloorHeight samples the height field at (x, z) with bilinear interpolation.
// Coordinates outside the terrain are clamped to the nearest edge; the height
// is still returned together with an ErrOutOfBounds error.
func (t *Terrain) FloorHeight(x, z float64) (float64, error) {
	var err error
	ext := t.Extent()
	if !inRange(x, ext) || !inRange(z, ext) {
		err = errors.Wrapf(ErrOutOfBounds, "(%.3f, %.3f)", x, z)
		x, z = clamp(x, 0, ext), clamp(z, 0, ext)
	}
	if t.heights == nil || t.cellSize == 0 {
		return t.base, err
	}

	gx, gz := x/t.cellSize, z/t.cellSize
	x0, z0 := cell(gx, t.size), cell(gz, t.size)
	fx, fz := gx-float64(x0), gz-float64(z0)

	h00 := t.sample(x0, z0)
	h10 := t.sample(x0+1, z0)
	h01 := t.sample(x0, z0+1)
	h11 := t.sample(x0+1, z0+1)

	near := h00 + (h10-h00)*fx
	far := h01 + (h11-h01)*fx
	return t.base + near + (far-near)*fz, err
}

func (t *Terrain) sample(x, z int) float64 { return t.heights[z*t.size+x] }

func cell(g float64, size int) int {
	c := int(math.Floor(g))
	if c >= size-1 {
		c = size - 2
	}
	if c < 0 {
		c = 0
	}
	return c
}

func inRange(v, max float64) bool { return v >= 0 && v <= max }

// clamp maps NaN onto lo.
func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
