package tracking

import (
	"image"
	"math"
)

// Node is a labeled location in one camera's view.
type Node struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// Point returns the node position.
func (n Node) Point() image.Point { return image.Pt(n.X, n.Y) }

// Registry is an ordered, read-only set of nodes for one camera.
type Registry struct {
	nodes []Node
}

// NewRegistry copies nodes into a registry, preserving order.
func NewRegistry(nodes []Node) *Registry {
	r := &Registry{nodes: make([]Node, len(nodes))}
	copy(r.nodes, nodes)
	return r
}

// Nodes returns a copy of the registry contents in order.
func (r *Registry) Nodes() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

func (r *Registry) Len() int { return len(r.nodes) }

// Match returns the node closest to p whose Euclidean distance is strictly
// less than radius. On equal distances the node that comes first in the
// registry wins.
func (r *Registry) Match(p image.Point, radius float64) (Node, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, n := range r.nodes {
		d := math.Hypot(float64(p.X-n.X), float64(p.Y-n.Y))
		if d < radius && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Node{}, false
	}
	return r.nodes[best], true
}
