package layout

import (
	"math"

	"github.com/rendis/agentboard/pkg/schema"
)

// separationPad keeps resolved boxes from sitting edge-to-edge.
const separationPad = 8.0

// CollisionPair reports two nodes whose bounding boxes overlap in both axes.
type CollisionPair struct {
	A        string  `json:"a"`
	B        string  `json:"b"`
	OverlapX float64 `json:"overlapX"`
	OverlapY float64 `json:"overlapY"`
}

// DetectCollisions checks every unordered pair of nodes, treating each as
// an axis-aligned bounding box of fixed per-kind dimensions centered at its
// position. Every colliding pair is returned, not just the first.
func DetectCollisions(nodes []*schema.Node) []CollisionPair {
	var pairs []CollisionPair
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			ox, oy := overlap(nodes[i], nodes[j])
			if ox > 0 && oy > 0 {
				pairs = append(pairs, CollisionPair{
					A:        nodes[i].ID,
					B:        nodes[j].ID,
					OverlapX: ox,
					OverlapY: oy,
				})
			}
		}
	}
	return pairs
}

// overlap returns the overlap extents of two node boxes; a pair collides
// iff both extents are positive.
func overlap(a, b *schema.Node) (ox, oy float64) {
	aw, ah := boxFor(a)
	bw, bh := boxFor(b)
	ox = (aw+bw)/2 - math.Abs(a.Position.X-b.Position.X)
	oy = (ah+bh)/2 - math.Abs(a.Position.Y-b.Position.Y)
	return ox, oy
}

// ResolveCollisions displaces the second node of each reported pair along
// the axis of greatest overlap by the minimum distance required to separate
// the boxes, re-checking each pair against positions updated so far.
//
// This is a single greedy pass, not an iterative solver: it is only
// required to reduce the collision count. Dense clusters of three or more
// mutually overlapping nodes may retain some overlap afterwards; that is
// accepted behavior, not a bug.
func ResolveCollisions(nodes []*schema.Node, collisions []CollisionPair) []*schema.Node {
	resolved := make([]*schema.Node, len(nodes))
	index := make(map[string]*schema.Node, len(nodes))
	for i, n := range nodes {
		c := n.Clone()
		resolved[i] = c
		index[c.ID] = c
	}

	for _, pair := range collisions {
		a, okA := index[pair.A]
		b, okB := index[pair.B]
		if !okA || !okB {
			continue
		}
		// Re-check: an earlier displacement may already have separated them.
		ox, oy := overlap(a, b)
		if ox <= 0 || oy <= 0 {
			continue
		}
		if ox >= oy {
			b.Position.X += direction(a.Position.X, b.Position.X) * (ox + separationPad)
		} else {
			b.Position.Y += direction(a.Position.Y, b.Position.Y) * (oy + separationPad)
		}
		if b.Position.X < 0 {
			b.Position.X = 0
		}
		if b.Position.Y < 0 {
			b.Position.Y = 0
		}
	}

	return resolved
}

// direction pushes b away from a; coincident centers push down/right.
func direction(a, b float64) float64 {
	if b < a {
		return -1
	}
	return 1
}
