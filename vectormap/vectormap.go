// Package vectormap loads and queries the polyline map the planner and
// localizer both check obstacles against: a finite ordered set of line
// segments, immutable once loaded.
package vectormap

import (
	"encoding/json"
	"fmt"
	"os"

	"social-nav/core/geometry"
)

// pointManifest is the on-disk representation of a Point2.
type pointManifest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// segmentManifest is the on-disk representation of a Segment.
type segmentManifest struct {
	P0 pointManifest `json:"p0"`
	P1 pointManifest `json:"p1"`
}

// MapManifest is the JSON document read from maps/<name>.json: an ordered
// array of line segments describing walls, in file order.
type MapManifest struct {
	Segments []segmentManifest `json:"segments"`
}

// Map is a finite ordered multiset of segments, immutable after Load.
type Map struct {
	segments []geometry.Segment
}

// New builds a Map directly from a segment slice, useful for tests and for
// synthetic maps constructed in memory.
func New(segments []geometry.Segment) *Map {
	cloned := make([]geometry.Segment, len(segments))
	copy(cloned, segments)
	return &Map{segments: cloned}
}

// Load reads a map manifest from path (conventionally maps/<name>.json) and
// returns the parsed Map.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vectormap: load %s: %w", path, err)
	}
	var manifest MapManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("vectormap: parse %s: %w", path, err)
	}
	segments := make([]geometry.Segment, 0, len(manifest.Segments))
	for _, s := range manifest.Segments {
		segments = append(segments, geometry.Segment{
			P0: geometry.Point2{X: s.P0.X, Y: s.P0.Y},
			P1: geometry.Point2{X: s.P1.X, Y: s.P1.Y},
		})
	}
	return &Map{segments: segments}, nil
}

// Segments returns the full ordered segment list. Callers must not mutate
// the returned slice's backing array.
func (m *Map) Segments() []geometry.Segment {
	if m == nil {
		return nil
	}
	return m.segments
}

// Intersects reports whether the segment (p, q) intersects any segment in
// the map.
func (m *Map) Intersects(p, q geometry.Point2) bool {
	if m == nil {
		return false
	}
	edge := geometry.NewSegment(p, q)
	for _, wall := range m.segments {
		if edge.Intersects(wall) {
			return true
		}
	}
	return false
}

// IntersectsSegment reports whether edge intersects any segment in the map.
func (m *Map) IntersectsSegment(edge geometry.Segment) bool {
	if m == nil {
		return false
	}
	for _, wall := range m.segments {
		if edge.Intersects(wall) {
			return true
		}
	}
	return false
}

// ClosestIntersection walks the map segments and returns the intersection
// point on ray closest to ray.P0, together with whether any intersection
// was found. Used by the localizer's beam model.
func (m *Map) ClosestIntersection(ray geometry.Segment) (geometry.Point2, bool) {
	if m == nil {
		return geometry.Point2{}, false
	}
	best := geometry.Point2{}
	bestDist := 0.0
	found := false
	for _, wall := range m.segments {
		var point geometry.Point2
		if !ray.Intersection(wall, &point) {
			continue
		}
		dist := geometry.EuclideanDistance(ray.P0, point)
		if !found || dist < bestDist {
			found = true
			bestDist = dist
			best = point
		}
	}
	return best, found
}
