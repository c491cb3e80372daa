// Package physics holds the sphere geometry shared by every simulated element:
// bounding spheres, the overlap test and the impact point math used when two
// spheres overlap.
package physics

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// SpatialData is a bounding sphere snapshot. Values are rebuilt every tick and
// never mutated in place.
type SpatialData struct {
	center mgl64.Vec3
	radius float64
}

// NewSpatialData returns a sphere at center. A negative radius is rejected.
func NewSpatialData(center mgl64.Vec3, radius float64) (SpatialData, error) {
	if radius < 0 || math.IsNaN(radius) {
		return SpatialData{}, errors.Wrapf(ErrNegativeRadius, "%v", radius)
	}
	return SpatialData{center: center, radius: radius}, nil
}

// MustSpatialData is NewSpatialData for constant inputs.
func MustSpatialData(center mgl64.Vec3, radius float64) SpatialData {
	sd, err := NewSpatialData(center, radius)
	if err != nil {
		panic(err)
	}
	return sd
}

// CenterPoint is the sphere center.
func (s SpatialData) CenterPoint() mgl64.Vec3 { return s.center }

// Radius is never negative.
func (s SpatialData) Radius() float64 { return s.radius }

// WithCenter returns a copy moved to center.
func (s SpatialData) WithCenter(center mgl64.Vec3) SpatialData {
	return SpatialData{center: center, radius: s.radius}
}

// Intersects reports whether the distance between centers is strictly less
// than the sum of radii. Two zero-radius points at the same center do not
// intersect.
func (s SpatialData) Intersects(other SpatialData) bool {
	sum := s.radius + other.radius
	return Distance(s.center, other.center) < sum
}

// Equal reports exact equality of center and radius.
func (s SpatialData) Equal(other SpatialData) bool {
	return s.radius == other.radius && s.center == other.center
}

func (s SpatialData) String() string {
	return fmt.Sprintf("sphere(%.3f,%.3f,%.3f r=%.3f)", s.center[0], s.center[1], s.center[2], s.radius)
}

// Distance computes the Euclidean distance between two points.
func Distance(a, b mgl64.Vec3) float64 { return b.Sub(a).Len() }

// Distance2 computes the Euclidean distance between two points on the x/z plane.
func Distance2(x1, z1, x2, z2 float64) float64 { return math.Hypot(x2-x1, z2-z1) }

// Interpolate moves from toward to by fraction. Fractions above one extrapolate
// past to.
func Interpolate(from, to mgl64.Vec3, fraction float64) mgl64.Vec3 {
	return from.Add(to.Sub(from).Mul(fraction))
}

// ImpactPoints computes the impact point reported to each side of an
// overlapping pair. Each point starts at its own center and moves toward the
// other center by (ra+rb)/r, which extrapolates beyond the contact surface
// whenever both radii are positive. A zero radius on either side yields
// ErrInvalidGeometry.
func ImpactPoints(a, b SpatialData) (pointA, pointB mgl64.Vec3, err error) {
	if a.radius == 0 || b.radius == 0 {
		return mgl64.Vec3{}, mgl64.Vec3{}, errors.Wrapf(ErrInvalidGeometry, "radii %v and %v", a.radius, b.radius)
	}
	total := a.radius + b.radius
	pointA = Interpolate(a.center, b.center, total/a.radius)
	pointB = Interpolate(b.center, a.center, total/b.radius)
	return pointA, pointB, nil
}
