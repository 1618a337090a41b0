package bvh

import (
	"math"
	"sort"

	"github.com/san-kum/hpmcpatch/internal/vecmath"
)

// Sphere is one item placed in a tree.
type Sphere struct {
	Center vecmath.Vec3
	Radius float32
}

type AABB struct {
	Lo, Hi vecmath.Vec3
}

func (s Sphere) box() AABB {
	r := vecmath.V(s.Radius, s.Radius, s.Radius)
	return AABB{Lo: s.Center.Sub(r), Hi: s.Center.Add(r)}
}

func (b AABB) union(o AABB) AABB {
	return AABB{Lo: vecmath.Min(b.Lo, o.Lo), Hi: vecmath.Max(b.Hi, o.Hi)}
}

func (b AABB) Center() vecmath.Vec3 {
	return b.Lo.Add(b.Hi).Scale(0.5)
}

// Overlaps reports whether the sphere (c, r) touches the box.
func (b AABB) Overlaps(c vecmath.Vec3, r float32) bool {
	var d2 float32
	for i := 0; i < 3; i++ {
		v, lo, hi := c.Component(i), b.Lo.Component(i), b.Hi.Component(i)
		switch {
		case v < lo:
			d2 += (lo - v) * (lo - v)
		case v > hi:
			d2 += (v - hi) * (v - hi)
		}
	}
	return d2 <= r*r
}

type node struct {
	box         AABB
	left, right int
	start, n    int
}

func (n *node) leaf() bool { return n.left < 0 }

// Leaf is a leaf node with its bounding sphere.
type Leaf struct {
	Center vecmath.Vec3
	Radius float32
	Items  []int
}

// Tree is a bounding volume hierarchy of spheres with at most a fixed
// number of items per leaf.
type Tree struct {
	nodes   []node
	items   []int
	spheres []Sphere
	leaves  []Leaf
}

// Build splits the spheres at the median of the longest box axis until every
// leaf holds at most capacity items. capacity below 1 is treated as 1.
func Build(spheres []Sphere, capacity int) *Tree {
	if capacity < 1 {
		capacity = 1
	}
	t := &Tree{
		spheres: append([]Sphere(nil), spheres...),
		items:   make([]int, len(spheres)),
	}
	for i := range t.items {
		t.items[i] = i
	}
	if len(spheres) > 0 {
		t.build(0, len(spheres), capacity)
	}
	return t
}

func (t *Tree) build(start, end, capacity int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{left: -1, right: -1, start: start, n: end - start})

	box := t.spheres[t.items[start]].box()
	for _, it := range t.items[start+1 : end] {
		box = box.union(t.spheres[it].box())
	}
	t.nodes[idx].box = box

	if end-start <= capacity {
		t.leaves = append(t.leaves, t.leafOf(start, end))
		return idx
	}

	ext := box.Hi.Sub(box.Lo)
	axis := 0
	for i := 1; i < 3; i++ {
		if ext.Component(i) > ext.Component(axis) {
			axis = i
		}
	}
	part := t.items[start:end]
	sort.SliceStable(part, func(a, b int) bool {
		return t.spheres[part[a]].Center.Component(axis) < t.spheres[part[b]].Center.Component(axis)
	})

	mid := start + (end-start)/2
	left := t.build(start, mid, capacity)
	right := t.build(mid, end, capacity)
	t.nodes[idx].left, t.nodes[idx].right = left, right
	return idx
}

func (t *Tree) leafOf(start, end int) Leaf {
	c := t.spheres[t.items[start]].box()
	for _, it := range t.items[start+1 : end] {
		c = c.union(t.spheres[it].box())
	}
	center := c.Center()
	var r float32
	for _, it := range t.items[start:end] {
		s := t.spheres[it]
		if d := s.Center.Sub(center).Norm() + s.Radius; d > r {
			r = d
		}
	}
	return Leaf{Center: center, Radius: r, Items: append([]int(nil), t.items[start:end]...)}
}

func (t *Tree) Len() int { return len(t.spheres) }

// Leaves returns the leaves in depth-first order.
func (t *Tree) Leaves() []Leaf { return t.leaves }

func (t *Tree) NumLeaves() int { return len(t.leaves) }

// Bounds returns the box around every item. ok is false for an empty tree.
func (t *Tree) Bounds() (AABB, bool) {
	if len(t.nodes) == 0 {
		return AABB{}, false
	}
	return t.nodes[0].box, true
}

// Query calls visit for every item in a leaf whose box touches the sphere
// (c, r). Items outside the sphere may be visited; items whose own sphere
// touches it always are.
func (t *Tree) Query(c vecmath.Vec3, r float32, visit func(item int)) {
	if len(t.nodes) == 0 || r < 0 || math.IsNaN(float64(r)) {
		return
	}
	stack := make([]int, 1, 32)
	stack[0] = 0
	for len(stack) > 0 {
		n := &t.nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]
		if !n.box.Overlaps(c, r) {
			continue
		}
		if n.leaf() {
			for _, it := range t.items[n.start : n.start+n.n] {
				visit(it)
			}
			continue
		}
		stack = append(stack, n.right, n.left)
	}
}
