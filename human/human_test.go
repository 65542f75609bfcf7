package human

import (
	"math"
	"testing"

	"social-nav/core/geometry"
	"social-nav/core/vectormap"
)

func TestSafetyCostDecaysWithDistance(t *testing.T) {
	p := NewPedestrian(geometry.Point2{X: 0, Y: 0}, 0)
	near := p.SafetyCost(geometry.Point2{X: 0.1, Y: 0})
	far := p.SafetyCost(geometry.Point2{X: 5, Y: 0})
	if !(near > far) {
		t.Fatalf("SafetyCost(near)=%v should exceed SafetyCost(far)=%v", near, far)
	}
	if far < 0 {
		t.Fatalf("SafetyCost must be >= 0, got %v", far)
	}
}

func TestSafetyCostZeroBeyondCutoff(t *testing.T) {
	p := NewPedestrian(geometry.Point2{X: 0, Y: 0}, 0)
	if got := p.SafetyCost(geometry.Point2{X: 11, Y: 0}); got != 0 {
		t.Fatalf("SafetyCost beyond 10m = %v, want 0", got)
	}
}

func TestVisibilityCostHigherInFOV(t *testing.T) {
	p := NewPedestrian(geometry.Point2{X: 0, Y: 0}, 0)
	inFront := p.VisibilityCost(geometry.Point2{X: 1, Y: 0})
	behind := p.VisibilityCost(geometry.Point2{X: -1, Y: 0})
	if !(inFront > behind) {
		t.Fatalf("VisibilityCost(front)=%v should exceed VisibilityCost(behind)=%v", inFront, behind)
	}
}

func TestClampForDisplay(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{in: 0, want: 0.5},
		{in: 0.7, want: 0.7},
		{in: 5, want: 1.0},
	}
	for _, tc := range cases {
		if got := ClampForDisplay(tc.in); got != tc.want {
			t.Fatalf("ClampForDisplay(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsHiddenBlockedByWall(t *testing.T) {
	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: 1, Y: -5}, geometry.Point2{X: 1, Y: 5}),
	})
	p := NewPedestrian(geometry.Point2{X: 2, Y: 0}, 0)
	if !p.IsHidden(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("expected pedestrian to be hidden behind wall")
	}
	if p.IsHidden(geometry.Point2{X: 2, Y: -1}, m) {
		t.Fatalf("expected pedestrian to be visible with no wall between viewpoints")
	}
}

func TestPopulationNeedsSocialReplanOnMovement(t *testing.T) {
	m := vectormap.New(nil)
	p := NewPedestrian(geometry.Point2{X: 3, Y: 0}, 0)

	var pop Population
	pop.Add(p)

	if pop.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("no movement yet, should not need replan")
	}

	p.Loc = geometry.Point2{X: 3.6, Y: 0}
	if !pop.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("expected replan after human moved beyond threshold")
	}
	if pop.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("snapshot should have advanced after triggering replan")
	}
}

func TestPopulationSnapshotAxesAdvanceIndependently(t *testing.T) {
	m := vectormap.New(nil)
	p := NewPedestrian(geometry.Point2{X: 3, Y: 0}, 0)

	var pop Population
	pop.Add(p)

	// Move past moveThreshold without turning: replan fires and the location
	// snapshot advances, but the angle snapshot must be left untouched.
	p.Loc = geometry.Point2{X: 3.6, Y: 0}
	if !pop.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("expected replan after human moved beyond threshold")
	}

	// Now turn past turnThreshold with no further movement. If the angle
	// snapshot had been (incorrectly) advanced alongside the location
	// snapshot on the previous call, this would compare against the current
	// angle and never trigger.
	p.Angle = 0.9
	if !pop.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("expected a second replan from the turn-only change; angle snapshot was advanced prematurely")
	}
}

func TestPopulationIgnoresHiddenHumans(t *testing.T) {
	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: 1, Y: -5}, geometry.Point2{X: 1, Y: 5}),
	})
	p := NewPedestrian(geometry.Point2{X: 3, Y: 0}, 0)
	var pop Population
	pop.Add(p)

	p.Loc = geometry.Point2{X: 5, Y: 5}
	if pop.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}, m) {
		t.Fatalf("hidden human should not trigger replan even after moving")
	}
}

func TestAngleDiffSanity(t *testing.T) {
	if math.Abs(geometry.AngleDiff(0.6, 0)-0.6) > 1e-9 {
		t.Fatalf("sanity check on AngleDiff failed")
	}
}
