// Package geometry provides the plane primitives the navigation stack is
// built on: points, oriented line segments, segment-segment intersection,
// and the small set of scalar helpers (distance, angle normalization) used
// throughout the planner and localizer.
package geometry

import "math"

// Point2 is a point in the plane.
type Point2 struct {
	X, Y float64
}

// Add returns p+q.
func (p Point2) Add(q Point2) Point2 {
	return Point2{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point2) Sub(q Point2) Point2 {
	return Point2{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by s.
func (p Point2) Scale(s float64) Point2 {
	return Point2{X: p.X * s, Y: p.Y * s}
}

// Norm returns the Euclidean length of p treated as a vector.
func (p Point2) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// EuclideanDistance returns the straight-line distance between p and q.
func EuclideanDistance(p, q Point2) float64 {
	return p.Sub(q).Norm()
}

// ManhattanDistance returns |dx|+|dy| between p and q.
func ManhattanDistance(p, q Point2) float64 {
	return math.Abs(p.X-q.X) + math.Abs(p.Y-q.Y)
}

// AngleDiff normalizes a-b into (-pi, pi].
func AngleDiff(a, b float64) float64 {
	diff := a - b
	for diff > math.Pi {
		diff -= 2 * math.Pi
	}
	for diff <= -math.Pi {
		diff += 2 * math.Pi
	}
	return diff
}

// Segment is an oriented line segment from P0 to P1.
type Segment struct {
	P0, P1 Point2
}

// NewSegment builds a segment from two points.
func NewSegment(p0, p1 Point2) Segment {
	return Segment{P0: p0, P1: p1}
}

// direction returns P1-P0.
func (s Segment) direction() Point2 {
	return s.P1.Sub(s.P0)
}

// UnitNormal returns a unit vector perpendicular to the segment's direction,
// rotated 90 degrees clockwise from P0->P1 (right-hand convention).
func (s Segment) UnitNormal() Point2 {
	d := s.direction()
	n := d.Norm()
	if n == 0 {
		return Point2{}
	}
	return Point2{X: d.Y / n, Y: -d.X / n}
}

// UnitDirection returns the unit vector along P0->P1, or the zero vector for
// a degenerate (zero-length) segment.
func (s Segment) UnitDirection() Point2 {
	d := s.direction()
	n := d.Norm()
	if n == 0 {
		return Point2{}
	}
	return Point2{X: d.X / n, Y: d.Y / n}
}

// Length returns the segment's Euclidean length.
func (s Segment) Length() float64 {
	return s.direction().Norm()
}

// crossVec computes the 2D cross product (scalar) of vectors a and b.
func crossVec(a, b Point2) float64 {
	return a.X*b.Y - a.Y*b.X
}

// Intersection reports whether s and other intersect and, if so, writes the
// intersection point into *out. Endpoint touches count as an intersection.
// Collinear overlapping segments are treated as intersecting at the shared
// endpoint closest to s.P0 (the navigation core only ever needs the boolean
// and, when true, a point somewhere on the crossing).
func (s Segment) Intersection(other Segment, out *Point2) bool {
	p := s.P0
	r := s.direction()
	q := other.P0
	sVec := other.direction()

	rxs := crossVec(r, sVec)
	qp := q.Sub(p)
	qpxr := crossVec(qp, r)

	const eps = 1e-12

	if math.Abs(rxs) < eps {
		if math.Abs(qpxr) < eps {
			// Collinear: project onto the segment and check for overlap.
			rr := r.X*r.X + r.Y*r.Y
			if rr < eps {
				return false
			}
			t0 := (qp.X*r.X + qp.Y*r.Y) / rr
			t1 := t0 + (sVec.X*r.X+sVec.Y*r.Y)/rr
			lo, hi := t0, t1
			if lo > hi {
				lo, hi = hi, lo
			}
			if hi < 0 || lo > 1 {
				return false
			}
			t := math.Max(0, lo)
			if out != nil {
				*out = p.Add(r.Scale(t))
			}
			return true
		}
		return false
	}

	t := crossVec(qp, sVec) / rxs
	u := qpxr / rxs

	if t < -eps || t > 1+eps || u < -eps || u > 1+eps {
		return false
	}

	if out != nil {
		*out = p.Add(r.Scale(t))
	}
	return true
}

// Intersects reports whether s and other intersect, without computing the
// intersection point.
func (s Segment) Intersects(other Segment) bool {
	return s.Intersection(other, nil)
}
