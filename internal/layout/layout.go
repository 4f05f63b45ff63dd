package layout

import (
	"github.com/rendis/agentboard/pkg/schema"
)

// Band geometry. Issues occupy a single vertical column, the coordinator a
// second column centered on it, specialist agents a 2-column grid in a
// third band, and state nodes a single column in a fourth band.
const (
	Margin    = 60.0
	RowHeight = 120.0

	IssueColumnX       = 120.0
	CoordinatorColumnX = 420.0

	SpecialistLeftX   = 720.0
	SpecialistColumnW = 220.0
	SpecialistRowH    = 140.0

	StateColumnX   = 1180.0
	StateRowHeight = 100.0
)

// Bounding box dimensions per node kind, centered on the node position.
const (
	IssueBoxW = 200.0
	IssueBoxH = 90.0
	AgentBoxW = 180.0
	AgentBoxH = 100.0
	StateBoxW = 160.0
	StateBoxH = 70.0
)

// Bounds is the enclosing rectangle of a computed layout.
type Bounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layout is the result of CalculateLayout: positioned node copies plus the
// enclosing bounds. Input nodes are never mutated.
type Layout struct {
	Nodes  []*schema.Node `json:"nodes"`
	Bounds Bounds         `json:"bounds"`
}

// IssuePosition places the issue at the given index in the issue column.
// The result is independent of the total issue count, so positions are
// order-stable as issues are appended.
func IssuePosition(index int) schema.Position {
	return schema.Position{
		X: IssueColumnX,
		Y: float64(index)*RowHeight + Margin,
	}
}

// CoordinatorPosition centers the coordinator vertically on the issue column.
func CoordinatorPosition(issueCount int) schema.Position {
	return schema.Position{
		X: CoordinatorColumnX,
		Y: float64(issueCount)/2*RowHeight + Margin,
	}
}

// SpecialistPosition places a specialist agent in the fixed 2-column grid:
// even index left column, odd index right, row = index/2.
func SpecialistPosition(index int) schema.Position {
	col := index % 2
	row := index / 2
	return schema.Position{
		X: SpecialistLeftX + float64(col)*SpecialistColumnW,
		Y: float64(row)*SpecialistRowH + Margin,
	}
}

// StatePosition places a state node in the state column.
func StatePosition(index int) schema.Position {
	return schema.Position{
		X: StateColumnX,
		Y: float64(index)*StateRowHeight + Margin,
	}
}

// CalculateLayout computes deterministic positions for every node,
// partitioned by role, then runs one collision resolution pass. For a fixed
// input node slice the output is byte-identical on every call: no
// randomness, no wall clock, no dependence beyond the explicit node order.
// Degenerate input never fails; an empty node list yields an empty layout
// with zero-sized bounds.
func CalculateLayout(nodes []*schema.Node, edges []schema.Edge) Layout {
	positioned := make([]*schema.Node, 0, len(nodes))

	issueIdx, specialistIdx, stateIdx := 0, 0, 0
	issueCount := 0
	for _, n := range nodes {
		if n != nil && n.Kind == schema.NodeKindIssue {
			issueCount++
		}
	}

	for _, n := range nodes {
		if n == nil {
			continue
		}
		c := n.Clone()
		switch {
		case c.Kind == schema.NodeKindIssue:
			c.Position = IssuePosition(issueIdx)
			issueIdx++
		case c.Kind == schema.NodeKindAgent && c.Agent != nil && c.Agent.AgentID == schema.AgentCoordinator:
			c.Position = CoordinatorPosition(issueCount)
		case c.Kind == schema.NodeKindAgent:
			c.Position = SpecialistPosition(specialistIdx)
			specialistIdx++
		case c.Kind == schema.NodeKindState:
			c.Position = StatePosition(stateIdx)
			stateIdx++
		}
		positioned = append(positioned, c)
	}

	collisions := DetectCollisions(positioned)
	if len(collisions) > 0 {
		positioned = ResolveCollisions(positioned, collisions)
	}

	return Layout{
		Nodes:  positioned,
		Bounds: computeBounds(positioned),
	}
}

// computeBounds returns the enclosing rectangle of all node boxes.
func computeBounds(nodes []*schema.Node) Bounds {
	if len(nodes) == 0 {
		return Bounds{}
	}
	var maxX, maxY float64
	for _, n := range nodes {
		w, h := boxFor(n)
		if right := n.Position.X + w/2; right > maxX {
			maxX = right
		}
		if bottom := n.Position.Y + h/2; bottom > maxY {
			maxY = bottom
		}
	}
	return Bounds{Width: maxX + Margin, Height: maxY + Margin}
}

// boxFor returns the fixed bounding box dimensions for a node's kind.
func boxFor(n *schema.Node) (w, h float64) {
	switch n.Kind {
	case schema.NodeKindIssue:
		return IssueBoxW, IssueBoxH
	case schema.NodeKindAgent:
		return AgentBoxW, AgentBoxH
	case schema.NodeKindState:
		return StateBoxW, StateBoxH
	default:
		return AgentBoxW, AgentBoxH
	}
}
