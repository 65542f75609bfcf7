package planner

import (
	"social-nav/core/geometry"
	"social-nav/core/human"
)

// Draw color constants mirror the original visualization's fixed RGB
// palette: red for path endpoints, black for invalid nodes, green for path
// edges, blue for frontier points, orange/blue for neighbor fans.
const (
	colorPathEndpoint = 0xff0000
	colorPathEdge     = 0x009c08
	colorFrontier     = 0x0000ff
	colorNeighborLine = 0x000dff
	colorNeighborNode = 0xff9900
	colorInvalidNode  = 0x000000
	colorSocialSafety = 0xff0000
	colorSocialVis    = 0x00ff00
	colorSocialHidden = 0x0000ff
	colorSocialNone   = 0xcccccc
)

// DrawGlobalPath draws crosses at the path's start and goal and a line
// segment along each parent edge. A no-op if the path is empty or no
// Visualizer is attached.
func (p *Planner) DrawGlobalPath() {
	if p.visual == nil || len(p.path) == 0 {
		return
	}
	start := p.nodes[p.path[0]]
	goal := p.nodes[p.path[len(p.path)-1]]
	p.visual.DrawCross(start.Loc, 0.5, colorPathEndpoint)
	p.visual.DrawCross(goal.Loc, 0.5, colorPathEndpoint)

	for _, key := range p.path {
		node := p.nodes[key]
		parent, ok := p.nodes[node.ParentKey]
		if !ok {
			continue
		}
		p.visual.DrawLine(node.Loc, parent.Loc, colorPathEdge)
	}
}

// DrawSocialCosts draws every explored node colored by its social type,
// shaded by its clamped-for-display social cost (unlike the A* search
// itself, which always uses the unclamped value).
func (p *Planner) DrawSocialCosts() {
	if p.visual == nil {
		return
	}
	for _, node := range p.nodes {
		var base uint32
		switch node.SocialType {
		case SocialSafety:
			base = colorSocialSafety
		case SocialVisibility:
			base = colorSocialVis
		case SocialHidden:
			base = colorSocialHidden
		default:
			p.visual.DrawPoint(node.Loc, colorSocialNone)
			continue
		}
		shade := human.ClampForDisplay(node.SocialCost)
		p.visual.DrawPoint(node.Loc, shadeColor(base, shade))
	}
}

// shadeColor scales an RGB color's channels by shade in [0.5, 1.0], so a
// higher social cost renders a fuller-intensity color.
func shadeColor(rgb uint32, shade float64) uint32 {
	r := float64((rgb>>16)&0xff) * shade
	g := float64((rgb>>8)&0xff) * shade
	b := float64(rgb&0xff) * shade
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// DrawFrontier drains the frontier, drawing each entry's location. Like
// the original, this is visualization-only tooling meant to run after a
// search completes; draining a live frontier mid-search would break the
// next GetGlobalPath call.
func (p *Planner) DrawFrontier() {
	if p.visual == nil {
		return
	}
	for {
		key, ok := p.frontier.Pop()
		if !ok {
			break
		}
		if node, ok := p.nodes[key]; ok {
			p.visual.DrawPoint(node.Loc, colorFrontier)
		}
	}
}

// DrawNodeNeighbors highlights node and draws a line to each of its
// candidate neighbors, useful for debugging the collision cushion test.
func (p *Planner) DrawNodeNeighbors(node *Node) {
	if p.visual == nil || node == nil {
		return
	}
	p.visual.DrawCross(node.Loc, 2.0, colorPathEndpoint)
	for _, ref := range node.Neighbors {
		dx, dy := neighborOffset(ref.NeighborIndex)
		neighborLoc := node.Loc.Add(geometry.Point2{X: float64(dx) * p.resolution, Y: float64(dy) * p.resolution})
		p.visual.DrawPoint(neighborLoc, colorNeighborNode)
		p.visual.DrawLine(node.Loc, neighborLoc, colorNeighborLine)
	}
}

// DrawInvalidNodes draws a cross at every blacklisted failed location.
func (p *Planner) DrawInvalidNodes() {
	if p.visual == nil {
		return
	}
	for _, loc := range p.failedLocs {
		p.visual.DrawCross(loc, 0.5, colorInvalidNode)
	}
}
