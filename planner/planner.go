// Package planner implements the global path planner: a lazily expanded
// 8-connected lattice searched with A*, collision cushions against the
// vector map, and human-aware social costs layered on top of geometric
// distance. It is grounded on the game server's own container/heap
// pathfinder (see frontier), generalized with social costs, replan
// triggers, and target-node selection the game pathfinder never needed.
package planner

import (
	"context"
	"math"

	"social-nav/core/frontier"
	"social-nav/core/geometry"
	"social-nav/core/human"
	"social-nav/core/logging"
	"social-nav/core/vectormap"
)

// StartKey is the reserved sentinel identifying the search's root node.
// The only GridIndex that packs to this value is {XI: math.MinInt32, YI: 0},
// a cell far outside any lattice the search expands.
const StartKey int64 = math.MinInt64

// Defaults for every navconfig-tunable geometric constant below. New()
// seeds a Planner with these; Options override individual ones so a caller
// wiring navconfig.Config can thread its values through without touching
// the ones it left at zero.
const (
	// defaultCushionHalfWidth is the robot half-width used to thicken
	// collision edges (the "0.5" cushion contract).
	defaultCushionHalfWidth = 0.5

	// defaultSocialDistanceCutoff bounds how far a human can be from a node
	// and still contribute to that node's social cost.
	defaultSocialDistanceCutoff = 10.0

	// defaultDeadEndRadiusFactor times resolution is how close a new node
	// must be to a failed location before its neighbor set is emptied.
	defaultDeadEndRadiusFactor = 3.0

	// defaultControllerLookahead is the local-controller's target-selection
	// radius, matching navconfig's ReplanRadius knob.
	defaultControllerLookahead = 2.0
)

// goalRadiusFactor times resolution is the world-distance goal test.
const goalRadiusFactor = 0.71

// hardReplanRadiusFactor times resolution is the minimum distance a failed
// target must be from the robot before it is blacklisted.
const hardReplanRadiusFactor = math.Sqrt2

// maxIterations bounds the A* search loop.
const maxIterations = 1_000_000

// GridIndex is a signed 2-D lattice coordinate. Packing it into an int64
// key (instead of a formatted "xi_yi" string) avoids string allocation in
// the search's hot loop.
type GridIndex struct {
	XI, YI int32
}

// Pack returns the int64 key identifying this index, safe to use as a map
// key or frontier key.
func (g GridIndex) Pack() int64 {
	return int64(uint32(g.XI))<<32 | int64(uint32(g.YI))
}

// SocialType tags which cost term dominated a node's social cost.
type SocialType int

const (
	SocialNone SocialType = iota
	SocialSafety
	SocialVisibility
	SocialHidden
)

func (t SocialType) String() string {
	switch t {
	case SocialSafety:
		return "safety"
	case SocialVisibility:
		return "visibility"
	case SocialHidden:
		return "hidden"
	default:
		return "none"
	}
}

// NeighborRef identifies a candidate step from one node, without owning the
// target: the target is always looked up by key in the owning Planner's
// NavMap.
type NeighborRef struct {
	TargetIndex   GridIndex
	TargetKey     int64
	StepLength    float64
	NeighborIndex int // 0..8, 4 (self) never appears
}

// Node is one materialized lattice cell.
type Node struct {
	Key        int64
	Index      GridIndex
	Loc        geometry.Point2
	Cost       float64 // path cost from start, excluding social cost
	SocialCost float64
	SocialType SocialType
	ParentKey  int64
	Neighbors  []NeighborRef
	Visited    bool
}

// Visualizer receives the planner's output as draw primitives. The core
// never reads state back from it; a nil Visualizer makes every Draw* call
// a no-op.
type Visualizer interface {
	DrawCross(loc geometry.Point2, size float64, colorRGB uint32)
	DrawArc(loc geometry.Point2, radius, angleStart, angleEnd float64, colorRGB uint32)
	DrawPoint(loc geometry.Point2, colorRGB uint32)
	DrawLine(a, b geometry.Point2, colorRGB uint32)
}

// Planner is a global path planner instance. It owns its NavMap, frontier,
// failed-location blacklist, and human population; none of that state is
// safe for concurrent use, matching the single-threaded contract callers
// serialize against.
type Planner struct {
	resolution float64
	navMap     *vectormap.Map
	population human.Population

	cushionHalfWidth     float64
	socialDistanceCutoff float64
	deadEndRadiusFactor  float64
	controllerLookahead  float64

	nodes    map[int64]*Node
	frontier *frontier.Frontier

	failedLocs []geometry.Point2

	navGoal geometry.Point2
	path    []int64 // ordered START..goal keys; [StartKey] on failure

	needReplan       bool
	needSocialReplan bool

	publisher logging.Publisher
	visual    Visualizer
}

// Option configures a Planner at construction.
type Option func(*Planner)

// WithPublisher routes diagnostic events (infeasible search, replans) to
// pub instead of discarding them.
func WithPublisher(pub logging.Publisher) Option {
	return func(p *Planner) { p.publisher = pub }
}

// WithVisualizer attaches a draw-call sink for the supplemental Draw*
// methods.
func WithVisualizer(v Visualizer) Option {
	return func(p *Planner) { p.visual = v }
}

// WithCushionHalfWidth overrides the collision cushion's half-width,
// wiring navconfig.Config.CushionHalfWidth.
func WithCushionHalfWidth(w float64) Option {
	return func(p *Planner) { p.cushionHalfWidth = w }
}

// WithSocialDistanceCutoff overrides the human social-cost query radius,
// wiring navconfig.Config.SocialDistanceCutoff.
func WithSocialDistanceCutoff(cutoff float64) Option {
	return func(p *Planner) { p.socialDistanceCutoff = cutoff }
}

// WithDeadEndRadiusFactor overrides the blacklist dead-end radius factor,
// wiring navconfig.Config.DeadEndRadiusFactor.
func WithDeadEndRadiusFactor(factor float64) Option {
	return func(p *Planner) { p.deadEndRadiusFactor = factor }
}

// WithReplanRadius overrides the local controller's lookahead radius,
// wiring navconfig.Config.ReplanRadius.
func WithReplanRadius(radius float64) Option {
	return func(p *Planner) { p.controllerLookahead = radius }
}

// New builds a Planner over navMap at the given lattice resolution.
func New(resolution float64, navMap *vectormap.Map, opts ...Option) *Planner {
	p := &Planner{
		resolution:           resolution,
		navMap:               navMap,
		nodes:                make(map[int64]*Node),
		frontier:             frontier.New(),
		publisher:            logging.NopPublisher(),
		cushionHalfWidth:     defaultCushionHalfWidth,
		socialDistanceCutoff: defaultSocialDistanceCutoff,
		deadEndRadiusFactor:  defaultDeadEndRadiusFactor,
		controllerLookahead:  defaultControllerLookahead,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetResolution changes the lattice spacing used by future InitializeMap
// calls. It does not retroactively rescale an already-built NavMap.
func (p *Planner) SetResolution(r float64) {
	p.resolution = r
}

func (p *Planner) publish(ctx context.Context, typ logging.EventType, severity logging.Severity, extra map[string]any) {
	event := logging.Event{
		Type:     typ,
		Severity: severity,
		Category: logging.CategoryPlanning,
		Actor:    logging.EntityRef{ID: "planner", Kind: logging.EntityKindPlanner},
	}
	for k, v := range extra {
		event = event.WithExtra(k, v)
	}
	p.publisher.Publish(ctx, event)
}

// ---------------------------------------------------------------- humans

// AddHuman registers h with the planner. If a global path already exists,
// registering a new human immediately flags a social replan, since the
// existing path's social costs no longer account for h.
func (p *Planner) AddHuman(h human.Human) {
	if len(p.path) > 0 {
		p.needSocialReplan = true
	}
	p.population.Add(h)
}

// ClearPopulation removes all registered humans. Callers must clear before
// letting a registered human's lifetime end.
func (p *Planner) ClearPopulation() {
	p.population.Clear()
}

// NeedsSocialReplan reports whether social state has drifted enough since
// the last replan to warrant one: either a human was added mid-path, or a
// visible human has moved or turned past its snapshot threshold. The flag
// is sticky: once set it stays set until Replan clears it, matching the
// "some human changed since last plan" contract rather than a per-call
// re-derivation.
func (p *Planner) NeedsSocialReplan(robotLoc geometry.Point2) bool {
	if p.population.NeedsSocialReplan(robotLoc, p.navMap) {
		p.needSocialReplan = true
	}
	return p.needSocialReplan
}

// NeedsReplan reports whether the last GetClosestPathNode call determined
// the controller has drifted too far from the path.
func (p *Planner) NeedsReplan() bool {
	return p.needReplan
}

// ---------------------------------------------------------------- nodes

func newGridIndex(loc geometry.Point2, resolution float64) GridIndex {
	return GridIndex{
		XI: int32(math.Floor(loc.X/resolution + 0.5)),
		YI: int32(math.Floor(loc.Y/resolution + 0.5)),
	}
}

// neighborOffset returns the (dx, dy) step for a raw neighbor index in
// 0..8, skipping 4 (the center/self slot). Row-major: 0,1,2 is the row
// above, 3,5 is the same row (4 omitted), 6,7,8 is the row below.
func neighborOffset(neighborIndex int) (dx, dy int32) {
	dxi := boolToInt(neighborIndex%3 == 2) - boolToInt(neighborIndex%3 == 0)
	dyi := boolToInt(neighborIndex < 3) - boolToInt(neighborIndex > 5)
	return int32(dxi), int32(dyi)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// cushionSegments builds the collision test geometry for the edge from p0
// to p1: the edge itself, extended by cushionHalfWidth past p1 along its
// own direction, flanked by two parallel segments offset by
// cushionHalfWidth along the unit normal, and closed at both ends.
func (p *Planner) cushionSegments(edge geometry.Segment) []geometry.Segment {
	dir := edge.UnitDirection()
	normal := edge.UnitNormal()
	extended := edge.P1.Add(dir.Scale(p.cushionHalfWidth))

	a1 := edge.P0.Add(normal.Scale(p.cushionHalfWidth))
	a2 := extended.Add(normal.Scale(p.cushionHalfWidth))
	b1 := edge.P0.Sub(normal.Scale(p.cushionHalfWidth))
	b2 := extended.Sub(normal.Scale(p.cushionHalfWidth))

	return []geometry.Segment{
		geometry.NewSegment(a1, a2),
		geometry.NewSegment(b1, b2),
		geometry.NewSegment(a1, b1),
		geometry.NewSegment(a2, b2),
	}
}

// isValidStep reports whether stepping from loc to target is collision
// free: neither the direct edge nor any cushion segment may cross a map
// wall.
func (p *Planner) isValidStep(loc, target geometry.Point2) bool {
	edge := geometry.NewSegment(loc, target)
	if p.navMap.IntersectsSegment(edge) {
		return false
	}
	for _, cushion := range p.cushionSegments(edge) {
		if p.navMap.IntersectsSegment(cushion) {
			return false
		}
	}
	return true
}

// buildNeighbors enumerates the 8-connected candidate steps from a node at
// (loc, index) and filters out any that collide with the map. Step length
// is resolution for cardinal moves and resolution*sqrt2 for diagonals.
func (p *Planner) buildNeighbors(loc geometry.Point2, index GridIndex) []NeighborRef {
	var neighbors []NeighborRef
	for nidx := 0; nidx < 9; nidx++ {
		if nidx == 4 {
			continue
		}
		dx, dy := neighborOffset(nidx)
		offset := geometry.Point2{X: float64(dx) * p.resolution, Y: float64(dy) * p.resolution}
		target := loc.Add(offset)
		if !p.isValidStep(loc, target) {
			continue
		}
		stepLength := p.resolution
		if dx != 0 && dy != 0 {
			stepLength = p.resolution * math.Sqrt2
		}
		targetIndex := GridIndex{XI: index.XI + dx, YI: index.YI + dy}
		neighbors = append(neighbors, NeighborRef{
			TargetIndex:   targetIndex,
			TargetKey:     targetIndex.Pack(),
			StepLength:    stepLength,
			NeighborIndex: nidx,
		})
	}
	return neighbors
}

// nearFailedLoc reports whether loc is within the dead-end radius of any
// blacklisted location.
func (p *Planner) nearFailedLoc(loc geometry.Point2) bool {
	threshold := p.deadEndRadiusFactor * p.resolution
	for _, bad := range p.failedLocs {
		if geometry.EuclideanDistance(loc, bad) < threshold {
			return true
		}
	}
	return false
}

// socialCost computes a node's social_cost and social_type per the
// per-human contribution rule: hidden nodes take the occluding human's
// hiddenCost; visible nodes take the max of safety and visibility.
func (p *Planner) socialCost(loc geometry.Point2) (float64, SocialType) {
	maxCost := 0.0
	tag := SocialNone

	for _, h := range p.population.Humans() {
		hloc := h.GetLoc()
		if geometry.EuclideanDistance(loc, hloc) > p.socialDistanceCutoff {
			continue
		}
		if h.IsHidden(loc, p.navMap) {
			viewLine := geometry.NewSegment(hloc, loc)
			hit := false
			hiddenCost := 0.0
			for _, wall := range p.navMap.Segments() {
				var point geometry.Point2
				if !viewLine.Intersection(wall, &point) {
					continue
				}
				hit = true
				if cost := h.HiddenCost(loc, point); cost > hiddenCost {
					hiddenCost = cost
				}
			}
			if !hit {
				continue
			}
			if hiddenCost > maxCost {
				maxCost = hiddenCost
				tag = SocialHidden
			}
			continue
		}
		safety := h.SafetyCost(loc)
		visibility := h.VisibilityCost(loc)
		cost := math.Max(safety, visibility)
		if cost > maxCost {
			maxCost = cost
			if safety > visibility {
				tag = SocialSafety
			} else {
				tag = SocialVisibility
			}
		}
	}
	return maxCost, tag
}

// materialize builds and stores the Node reached from parent via
// neighborRef, including its own neighbor set and dead-end check.
func (p *Planner) materialize(parent *Node, ref NeighborRef) *Node {
	dx, dy := neighborOffset(ref.NeighborIndex)
	loc := parent.Loc.Add(geometry.Point2{X: float64(dx) * p.resolution, Y: float64(dy) * p.resolution})
	social, tag := p.socialCost(loc)

	node := &Node{
		Key:        ref.TargetKey,
		Index:      ref.TargetIndex,
		Loc:        loc,
		Cost:       parent.Cost + ref.StepLength,
		SocialCost: social,
		SocialType: tag,
		ParentKey:  parent.Key,
	}
	if !p.nearFailedLoc(loc) {
		node.Neighbors = p.buildNeighbors(loc, node.Index)
	}
	p.nodes[node.Key] = node
	return node
}

// InitializeMap resets the NavMap and frontier and seeds them with a
// single START node at loc.
func (p *Planner) InitializeMap(loc geometry.Point2) {
	p.nodes = make(map[int64]*Node)
	p.frontier.Clear()

	index := newGridIndex(loc, p.resolution)
	start := &Node{
		Key:        StartKey,
		Index:      index,
		Loc:        loc,
		Cost:       0,
		SocialType: SocialNone,
		ParentKey:  StartKey,
	}
	start.Neighbors = p.buildNeighbors(loc, index)
	p.nodes[StartKey] = start
	p.frontier.Push(StartKey, 0)
}

// heuristic is the octile distance from loc to goal.
func heuristic(loc, goal geometry.Point2) float64 {
	a := math.Abs(goal.X - loc.X)
	b := math.Abs(goal.Y - loc.Y)
	s := math.Abs(a - b)
	d := math.Sqrt2 * (a + b - s) / 2
	return s + d
}

// GetGlobalPath runs A* from the current NavMap (seeded by InitializeMap)
// to goal, storing the resulting key path. On failure the path is the
// singleton [StartKey].
func (p *Planner) GetGlobalPath(ctx context.Context, goal geometry.Point2) {
	p.navGoal = goal

	success := false
	var currentKey int64
	iterations := 0

	for iterations < maxIterations {
		key, ok := p.frontier.Pop()
		if !ok {
			break
		}
		currentKey = key
		current := p.nodes[currentKey]

		if geometry.EuclideanDistance(goal, current.Loc) < goalRadiusFactor*p.resolution {
			success = true
			break
		}

		for _, ref := range current.Neighbors {
			existing, known := p.nodes[ref.TargetKey]
			candidateCost := current.Cost + ref.StepLength

			if !known {
				node := p.materialize(current, ref)
				priority := candidateCost + node.SocialCost + heuristic(goal, node.Loc)
				p.frontier.Push(node.Key, priority)
			} else if candidateCost < existing.Cost {
				existing.Cost = candidateCost
				existing.ParentKey = current.Key
				priority := candidateCost + existing.SocialCost + heuristic(goal, existing.Loc)
				p.frontier.Push(existing.Key, priority)
			}
		}
		iterations++
	}

	if success {
		var keys []int64
		key := currentKey
		for key != StartKey {
			keys = append(keys, key)
			key = p.nodes[key].ParentKey
		}
		keys = append(keys, StartKey)
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
		p.path = keys
		p.publish(ctx, "planner.path.found", logging.SeverityInfo, map[string]any{
			"iterations":        iterations,
			"distanceTravelled": p.PathLength(),
		})
	} else {
		p.path = []int64{StartKey}
		p.publish(ctx, "planner.path.infeasible", logging.SeverityWarn, map[string]any{"iterations": iterations})
	}
}

// Path returns the last computed path as an ordered slice of node keys,
// START-first.
func (p *Planner) Path() []int64 {
	return p.path
}

// PathLocs resolves Path into world locations, in the same order.
func (p *Planner) PathLocs() []geometry.Point2 {
	locs := make([]geometry.Point2, 0, len(p.path))
	for _, key := range p.path {
		if node, ok := p.nodes[key]; ok {
			locs = append(locs, node.Loc)
		}
	}
	return locs
}

// PathLength sums the step lengths along the reconstructed path.
func (p *Planner) PathLength() float64 {
	total := 0.0
	for i := 1; i < len(p.path); i++ {
		prev := p.nodes[p.path[i-1]]
		cur := p.nodes[p.path[i]]
		total += geometry.EuclideanDistance(prev.Loc, cur.Loc)
	}
	return total
}

// Node looks up a materialized node by key.
func (p *Planner) Node(key int64) (*Node, bool) {
	n, ok := p.nodes[key]
	return n, ok
}

// ---------------------------------------------------------------- replan

// Replan handles the hard-replan trigger: failedTargetLoc is blacklisted
// (if far enough from robotLoc to be a meaningful obstacle rather than the
// robot's own position), the NavMap is rebuilt around robotLoc, and the
// search is rerun toward the existing nav goal.
func (p *Planner) Replan(ctx context.Context, robotLoc, failedTargetLoc geometry.Point2) {
	if geometry.EuclideanDistance(robotLoc, failedTargetLoc) > hardReplanRadiusFactor*p.resolution {
		p.failedLocs = append(p.failedLocs, failedTargetLoc)
	}

	p.InitializeMap(robotLoc)
	p.GetGlobalPath(ctx, p.navGoal)

	p.needReplan = false
	p.needSocialReplan = false

	p.publish(ctx, "planner.replan", logging.SeverityInfo, map[string]any{"blacklisted": len(p.failedLocs)})
}

// GetClosestPathNode selects the local controller's target node for
// robotLoc: the closest path node if the robot has drifted more than
// controllerLookahead away, otherwise the farthest path node still
// reachable by a collision-free straight line.
func (p *Planner) GetClosestPathNode(robotLoc geometry.Point2) *Node {
	if len(p.path) == 0 {
		p.needReplan = true
		return nil
	}

	closestIndex := 0
	minDistance := math.Inf(1)
	for i, key := range p.path {
		node := p.nodes[key]
		if node == nil {
			continue
		}
		d := geometry.EuclideanDistance(robotLoc, node.Loc)
		if d < minDistance {
			minDistance = d
			closestIndex = i
		}
	}
	closest := p.nodes[p.path[closestIndex]]
	closest.Visited = true

	if minDistance > p.controllerLookahead {
		p.needReplan = true
		return closest
	}

	targetIndex := len(p.path) - 1
	for i := closestIndex; i < len(p.path); i++ {
		node := p.nodes[p.path[i]]
		if geometry.EuclideanDistance(robotLoc, node.Loc) > p.controllerLookahead {
			targetIndex = i
			break
		}
	}

	target := p.nodes[p.path[targetIndex]]
	for i := targetIndex; i > closestIndex; i-- {
		candidate := p.nodes[p.path[i]]
		if !p.navMap.Intersects(robotLoc, candidate.Loc) {
			return candidate
		}
		if i < closestIndex+4 {
			p.needReplan = true
			return target
		}
	}
	return target
}
