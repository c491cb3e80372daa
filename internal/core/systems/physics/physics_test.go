package physics

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sphere(x, y, z, r float64) SpatialData {
	return MustSpatialData(mgl64.Vec3{x, y, z}, r)
}

func TestNewSpatialDataRejectsNegativeRadius(t *testing.T) {
	_, err := NewSpatialData(mgl64.Vec3{}, -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNegativeRadius))

	sd, err := NewSpatialData(mgl64.Vec3{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sd.Radius())
}

func TestIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b SpatialData
		want bool
	}{
		{"disjoint", sphere(0, 0, 0, 1), sphere(3, 0, 0, 1), false},
		{"overlapping", sphere(0, 0, 0, 1), sphere(1, 0, 0, 1), true},
		{"partial overlap", sphere(0, 0, 0, 1), sphere(1.5, 0, 0, 1), true},
		{"touching is not intersecting", sphere(0, 0, 0, 1), sphere(2, 0, 0, 1), false},
		{"coincident points", sphere(1, 1, 1, 0), sphere(1, 1, 1, 0), false},
		{"point inside sphere", sphere(0, 0, 0, 0), sphere(0.5, 0, 0, 1), true},
		{"coincident spheres", sphere(4, 4, 4, 1), sphere(4, 4, 4, 2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Intersects(tt.b))
			assert.Equal(t, tt.want, tt.b.Intersects(tt.a))
		})
	}
}

func TestImpactPointsExtrapolate(t *testing.T) {
	a := sphere(0, 0, 0, 1)
	b := sphere(1, 0, 0, 1)

	pa, pb, err := ImpactPoints(a, b)
	require.NoError(t, err)

	// fraction (1+1)/1 = 2 along the center line from each side
	assert.InDelta(t, 2.0, pa.X(), 1e-9)
	assert.InDelta(t, -1.0, pb.X(), 1e-9)
	assert.InDelta(t, 0.0, pa.Y(), 1e-9)
	assert.InDelta(t, 0.0, pb.Z(), 1e-9)
}

func TestImpactPointsUnequalRadii(t *testing.T) {
	a := sphere(0, 0, 0, 1)
	b := sphere(0, 0, 2, 3)

	pa, pb, err := ImpactPoints(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, pa.Z(), 1e-9)      // 0 + 2*4/1
	assert.InDelta(t, 2-2*4.0/3, pb.Z(), 1e-9) // 2 + (-2)*4/3
}

func TestImpactPointsZeroRadius(t *testing.T) {
	_, _, err := ImpactPoints(sphere(0, 0, 0, 0), sphere(0.5, 0, 0, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGeometry))

	_, _, err = ImpactPoints(sphere(0, 0, 0, 1), sphere(0.5, 0, 0, 0))
	assert.True(t, errors.Is(err, ErrInvalidGeometry))
}

func TestInterpolate(t *testing.T) {
	p := Interpolate(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 4, 6}, 0.5)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, p)
}

func TestDistance2(t *testing.T) {
	assert.InDelta(t, 5.0, Distance2(0, 0, 3, 4), 1e-12)
}
