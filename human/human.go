// Package human defines the capability contract the planner needs from a
// pedestrian and a concrete Pedestrian implementation, plus the Population
// registry the planner snapshots for social-replan change detection. The
// planner treats every human as a Human; the pedestrian predictor that
// drives Pedestrian.Loc/Angle over time lives outside this module.
package human

import (
	"math"

	"social-nav/core/geometry"
	"social-nav/core/vectormap"
)

// socialDistanceCutoff mirrors the planner's own 10 m skip radius; a human
// query outside that range is never issued, so cost functions do not need
// to defend against far-field inputs, but Pedestrian's fall off well
// before it regardless.
const socialDistanceCutoff = 10.0

// Human is the capability set the planner requires from a pedestrian
// handle. Implementations may be backed by a live tracker, a scripted
// trajectory, or a test fixture.
type Human interface {
	GetLoc() geometry.Point2
	GetAngle() float64
	// IsHidden reports whether viewpoint cannot see this human's location
	// because some map segment occludes the line of sight.
	IsHidden(viewpoint geometry.Point2, m *vectormap.Map) bool
	SafetyCost(p geometry.Point2) float64
	VisibilityCost(p geometry.Point2) float64
	HiddenCost(nodeLoc, wallPoint geometry.Point2) float64
}

// Pedestrian is a concrete Human backed by a directly-observed pose. Its
// three cost functions model comfort-distance intrusion, a forward
// visibility cone, and a surprise penalty for positions that would pop
// into view close to a wall.
type Pedestrian struct {
	Loc   geometry.Point2
	Angle float64

	// PersonalSpace is the 1-sigma radius (m) of the Gaussian safety
	// penalty around the pedestrian; positions inside it are treated as
	// personal-space intrusions.
	PersonalSpace float64
	// FieldOfView is the half-angle (rad) of the pedestrian's forward
	// visibility cone used by VisibilityCost.
	FieldOfView float64
}

// NewPedestrian builds a Pedestrian with the navigation-tuned defaults: a
// 1.2 m personal-space radius and a 60-degree (pi/3 rad) half-angle
// forward cone, both typical proxemics figures for a walking adult.
func NewPedestrian(loc geometry.Point2, angle float64) *Pedestrian {
	return &Pedestrian{
		Loc:           loc,
		Angle:         angle,
		PersonalSpace: 1.2,
		FieldOfView:   math.Pi / 3,
	}
}

func (p *Pedestrian) GetLoc() geometry.Point2 { return p.Loc }
func (p *Pedestrian) GetAngle() float64       { return p.Angle }

// IsHidden reports whether the segment from viewpoint to the pedestrian's
// location is blocked by any map wall.
func (p *Pedestrian) IsHidden(viewpoint geometry.Point2, m *vectormap.Map) bool {
	return m.Intersects(viewpoint, p.Loc)
}

// SafetyCost is a Gaussian penalty centered on the pedestrian, representing
// personal-space intrusion. It decays to near zero well inside the 10 m
// social cutoff so it never dominates costs for distant nodes.
func (p *Pedestrian) SafetyCost(loc geometry.Point2) float64 {
	d := geometry.EuclideanDistance(p.Loc, loc)
	if d >= socialDistanceCutoff {
		return 0
	}
	sigma := p.PersonalSpace
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

// VisibilityCost penalizes positions inside the pedestrian's forward field
// of view: a robot crossing in front of a human reads as more disruptive
// than one passing behind. The penalty is the safety Gaussian scaled up to
// 1.5x when loc falls within the FOV cone, and left at the plain Gaussian
// otherwise, so the two terms compose via max() the way the planner's
// social-cost rule expects.
func (p *Pedestrian) VisibilityCost(loc geometry.Point2) float64 {
	d := geometry.EuclideanDistance(p.Loc, loc)
	if d >= socialDistanceCutoff {
		return 0
	}
	bearing := math.Atan2(loc.Y-p.Loc.Y, loc.X-p.Loc.X)
	inCone := math.Abs(geometry.AngleDiff(bearing, p.Angle)) <= p.FieldOfView
	sigma := p.PersonalSpace
	base := math.Exp(-(d * d) / (2 * sigma * sigma))
	if inCone {
		return 1.5 * base
	}
	return base
}

// HiddenCost penalizes robot positions the pedestrian cannot currently see
// but which sit close to the occluding wall, since those are the positions
// from which the robot would appear to suddenly pop into view. The
// distance from nodeLoc to wallPoint stands in for how close the robot is
// to that reveal boundary; closer means a bigger surprise.
func (p *Pedestrian) HiddenCost(nodeLoc, wallPoint geometry.Point2) float64 {
	revealDistance := geometry.EuclideanDistance(nodeLoc, wallPoint)
	sigma := p.PersonalSpace
	return math.Exp(-(revealDistance * revealDistance) / (2 * sigma * sigma))
}

// ClampForDisplay maps a raw social cost onto [0.5, 1.0] for visualization
// coloring only; the A* search always uses the unclamped value returned by
// the cost functions above.
func ClampForDisplay(cost float64) float64 {
	if cost < 0.5 {
		return 0.5
	}
	if cost > 1.0 {
		return 1.0
	}
	return cost
}

// snapshot records a human's last observed pose for change detection.
type snapshot struct {
	loc   geometry.Point2
	angle float64
}

// moveThreshold and turnThreshold are the soft-replan triggers: a visible
// human crossing either flags a social replan and advances that axis of
// the human's snapshot.
const (
	moveThreshold = 0.5
	turnThreshold = 0.5
)

// Population is the planner's ordered registry of human handles, together
// with the per-human pose snapshot used to detect the "someone visible
// moved" condition that triggers a soft social replan.
type Population struct {
	humans    []Human
	snapshots []snapshot
}

// Add registers h and takes its initial pose snapshot.
func (p *Population) Add(h Human) {
	p.humans = append(p.humans, h)
	p.snapshots = append(p.snapshots, snapshot{loc: h.GetLoc(), angle: h.GetAngle()})
}

// Clear empties the registry. Callers must clear before letting a
// registered human's lifetime end.
func (p *Population) Clear() {
	p.humans = nil
	p.snapshots = nil
}

// Humans returns the registered handles in registration order. Callers
// must not mutate the returned slice.
func (p *Population) Humans() []Human {
	return p.humans
}

// Len reports the number of registered humans.
func (p *Population) Len() int {
	return len(p.humans)
}

// NeedsSocialReplan reports whether any human visible from robotLoc has
// moved more than moveThreshold or turned more than turnThreshold since
// its last snapshot. Each axis of a human's snapshot is only advanced when
// that axis's own threshold was exceeded, matching the "conditional update"
// rule: a human that moved 0.3 m keeps accumulating against its old
// location snapshot until the cumulative displacement crosses the
// threshold, independent of whether it also turned.
func (p *Population) NeedsSocialReplan(robotLoc geometry.Point2, m *vectormap.Map) bool {
	replan := false
	for i, h := range p.humans {
		if h.IsHidden(robotLoc, m) {
			continue
		}
		loc := h.GetLoc()
		angle := h.GetAngle()
		prev := p.snapshots[i]
		moved := geometry.EuclideanDistance(loc, prev.loc) > moveThreshold
		turned := math.Abs(geometry.AngleDiff(angle, prev.angle)) > turnThreshold
		if moved {
			replan = true
			p.snapshots[i].loc = loc
		}
		if turned {
			replan = true
			p.snapshots[i].angle = angle
		}
	}
	return replan
}
