package planner

import (
	"context"
	"math"
	"testing"
	"time"

	"social-nav/core/geometry"
	"social-nav/core/human"
	"social-nav/core/logging"
	"social-nav/core/logging/sinks"
	"social-nav/core/vectormap"
)

func TestEmptyMapStraightPath(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m)
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 3, Y: 0})

	if got, want := len(p.Path()), 4; got != want {
		t.Fatalf("path has %d keys, want %d", got, want)
	}
	if got, want := p.Path()[0], StartKey; got != want {
		t.Fatalf("path[0] = %d, want StartKey", got)
	}
	if got, want := p.PathLength(), 3.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("PathLength() = %v, want %v", got, want)
	}
}

func TestWallForcesDetour(t *testing.T) {
	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: 1, Y: -5}, geometry.Point2{X: 1, Y: 5}),
	})
	p := New(1.0, m)
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 2, Y: 0})

	if p.Path()[0] != StartKey || len(p.Path()) < 2 {
		t.Fatalf("expected a non-trivial path, got %v", p.Path())
	}
	if got := p.PathLength(); got <= 2.0 {
		t.Fatalf("PathLength() = %v, want > 2.0 (must detour around the wall)", got)
	}

	sawDetour := false
	for _, loc := range p.PathLocs() {
		if math.Abs(loc.Y) >= 1 {
			sawDetour = true
			break
		}
	}
	if !sawDetour {
		t.Fatalf("expected at least one path node with |y| >= 1")
	}
}

func TestUnreachableGoalReturnsStartOnly(t *testing.T) {
	// A closed box of side 2 around the origin traps the start node.
	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: -1, Y: -1}, geometry.Point2{X: 1, Y: -1}),
		geometry.NewSegment(geometry.Point2{X: 1, Y: -1}, geometry.Point2{X: 1, Y: 1}),
		geometry.NewSegment(geometry.Point2{X: 1, Y: 1}, geometry.Point2{X: -1, Y: 1}),
		geometry.NewSegment(geometry.Point2{X: -1, Y: 1}, geometry.Point2{X: -1, Y: -1}),
	})
	p := New(1.0, m)
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 10, Y: 10})

	if got := p.Path(); len(got) != 1 || got[0] != StartKey {
		t.Fatalf("Path() = %v, want [StartKey]", got)
	}
}

func TestReplanBlacklistsFailedTarget(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m)
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 10, Y: 0})

	p.Replan(context.Background(), geometry.Point2{X: 0, Y: 0}, geometry.Point2{X: 5, Y: 0})

	for key, node := range p.nodes {
		if key == StartKey {
			continue
		}
		if geometry.EuclideanDistance(node.Loc, geometry.Point2{X: 5, Y: 0}) < p.deadEndRadiusFactor*p.resolution {
			if len(node.Neighbors) != 0 {
				t.Fatalf("node near blacklisted loc %v still has neighbors", node.Loc)
			}
		}
	}
}

func TestSocialCostNonNegativeAndTagged(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m)
	p.AddHuman(human.NewPedestrian(geometry.Point2{X: 2, Y: 0}, 0))

	cost, tag := p.socialCost(geometry.Point2{X: 2, Y: 0})
	if cost < 0 {
		t.Fatalf("social cost = %v, want >= 0", cost)
	}
	if tag == SocialNone {
		t.Fatalf("expected a non-none social tag next to a human, got %v", tag)
	}
}

func TestNeedsSocialReplanOnAddHumanMidPath(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m)
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 3, Y: 0})

	if p.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}) {
		t.Fatalf("no humans registered yet, should not need social replan")
	}
	p.AddHuman(human.NewPedestrian(geometry.Point2{X: 1, Y: 1}, 0))
	if !p.NeedsSocialReplan(geometry.Point2{X: 0, Y: 0}) {
		t.Fatalf("adding a human mid-path should flag a social replan")
	}
}

func TestWithSocialDistanceCutoffNarrowsRange(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m, WithSocialDistanceCutoff(1.0))
	p.AddHuman(human.NewPedestrian(geometry.Point2{X: 5, Y: 0}, 0))

	cost, tag := p.socialCost(geometry.Point2{X: 0, Y: 0})
	if cost != 0 || tag != SocialNone {
		t.Fatalf("social cost = (%v, %v), want (0, SocialNone) beyond the configured 1.0 cutoff", cost, tag)
	}
}

func TestWithDeadEndRadiusFactorAppliesOnReplan(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m, WithDeadEndRadiusFactor(1.0))
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 10, Y: 0})

	p.Replan(context.Background(), geometry.Point2{X: 0, Y: 0}, geometry.Point2{X: 5, Y: 0})

	for key, node := range p.nodes {
		if key == StartKey {
			continue
		}
		if geometry.EuclideanDistance(node.Loc, geometry.Point2{X: 5, Y: 0}) < 1.0*p.resolution {
			if len(node.Neighbors) != 0 {
				t.Fatalf("node near blacklisted loc %v still has neighbors under the configured 1.0 dead-end radius", node.Loc)
			}
		}
	}
}

func TestInfeasibleSearchEmitsDiagnosticEvent(t *testing.T) {
	memSink := sinks.NewMemorySink()
	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logging.DefaultConfig(), []logging.NamedSink{
		{Name: "memory", Sink: memSink},
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	defer router.Close(context.Background())

	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: -1, Y: -1}, geometry.Point2{X: 1, Y: -1}),
		geometry.NewSegment(geometry.Point2{X: 1, Y: -1}, geometry.Point2{X: 1, Y: 1}),
		geometry.NewSegment(geometry.Point2{X: 1, Y: 1}, geometry.Point2{X: -1, Y: 1}),
		geometry.NewSegment(geometry.Point2{X: -1, Y: 1}, geometry.Point2{X: -1, Y: -1}),
	})
	p := New(1.0, m, WithPublisher(router))
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 10, Y: 10})

	deadline := time.Now().Add(time.Second)
	for len(memSink.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	events := memSink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d diagnostic events, want 1", len(events))
	}
	if events[0].Type != "planner.path.infeasible" {
		t.Fatalf("event type = %q, want planner.path.infeasible", events[0].Type)
	}
}

func TestHiddenSocialCostTakesMaxAcrossAllOccludingWalls(t *testing.T) {
	// Two horizontal walls cross the vertical view line between the human
	// and the queried node: one close to the node (small reveal distance,
	// high cost) and one close to the human (large reveal distance, low
	// cost). Taking the closest wall to the human instead of the max cost
	// across every occluding wall would pick the wrong one and understate
	// the hidden cost.
	m := vectormap.New([]geometry.Segment{
		geometry.NewSegment(geometry.Point2{X: -1, Y: -2}, geometry.Point2{X: 1, Y: -2}),
		geometry.NewSegment(geometry.Point2{X: -1, Y: 2}, geometry.Point2{X: 1, Y: 2}),
	})
	p := New(1.0, m, WithSocialDistanceCutoff(15.0))
	p.AddHuman(human.NewPedestrian(geometry.Point2{X: 0, Y: -5}, 0))

	cost, tag := p.socialCost(geometry.Point2{X: 0, Y: 5})
	if tag != SocialHidden {
		t.Fatalf("tag = %v, want SocialHidden", tag)
	}
	if cost < 0.01 {
		t.Fatalf("hidden cost = %v, want the near-node wall's cost (~0.044), not the near-human wall's (~4e-8)", cost)
	}
}

func TestGetClosestPathNodeReturnsGoalWhenAllNodesWithinLookahead(t *testing.T) {
	m := vectormap.New(nil)
	p := New(1.0, m, WithReplanRadius(10.0))
	p.InitializeMap(geometry.Point2{X: 0, Y: 0})
	p.GetGlobalPath(context.Background(), geometry.Point2{X: 3, Y: 0})

	target := p.GetClosestPathNode(geometry.Point2{X: 0, Y: 0})
	goal := p.nodes[p.path[len(p.path)-1]]
	if target != goal {
		t.Fatalf("GetClosestPathNode = %v, want the goal node %v when no path node exceeds the lookahead radius", target.Loc, goal.Loc)
	}
}

func TestOctileHeuristicAdmissible(t *testing.T) {
	goal := geometry.Point2{X: 5, Y: 3}
	for _, loc := range []geometry.Point2{{X: 0, Y: 0}, {X: 2, Y: 2}, {X: -1, Y: 4}} {
		h := heuristic(loc, goal)
		a := math.Abs(goal.X - loc.X)
		b := math.Abs(goal.Y - loc.Y)
		s := math.Abs(a - b)
		trueOctile := s + math.Sqrt2*(a+b-s)/2
		if math.Abs(h-trueOctile) > 1e-9 {
			t.Fatalf("heuristic(%v,%v) = %v, want %v", loc, goal, h, trueOctile)
		}
	}
}
