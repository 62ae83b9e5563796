package bvh

import (
	"github.com/soypat/shrinkwrap/internal/d3"
	"github.com/soypat/shrinkwrap/isect"
	"gonum.org/v1/gonum/spatial/r3"
)

// Nearest holds the running best result of a nearest query. Index is -1
// while nothing has been found.
type Nearest struct {
	Index  int
	Co     r3.Vec
	No     r3.Vec
	DistSq float64
}

// NoNearest returns an empty nearest result that accepts candidates closer
// than sqrt(maxDistSq). Pass math.Inf(1) for an unbounded search.
func NoNearest(maxDistSq float64) Nearest {
	return Nearest{Index: -1, DistSq: maxDistSq}
}

// Found reports whether the query found anything.
func (n Nearest) Found() bool { return n.Index >= 0 }

// RayHit holds the running best result of a ray cast. Index is -1 while
// nothing has been hit.
type RayHit struct {
	Index int
	Co    r3.Vec
	No    r3.Vec
	Dist  float64
}

// NoHit returns an empty hit that accepts hits closer than maxDist.
func NoHit(maxDist float64) RayHit {
	return RayHit{Index: -1, Dist: maxDist}
}

// Found reports whether the ray hit anything.
func (h RayHit) Found() bool { return h.Index >= 0 }

// NearestFunc tests the element stored under index against co and updates
// nearest if it is closer than nearest.DistSq.
type NearestFunc func(index int, co r3.Vec, nearest *Nearest)

// RayCastFunc intersects the element stored under index with the ray
// thickened by radius and updates hit if it is closer than hit.Dist.
type RayCastFunc func(index int, ray isect.Ray, radius float64, hit *RayHit)

// RangeFunc is called for every leaf within range with the squared
// distance from the query point to the leaf's bounds.
type RangeFunc func(index int, co r3.Vec, distSq float64)

// OverlapFunc decides whether two leaves with overlapping bounds overlap.
type OverlapFunc func(a, b int) bool

type childOrder struct {
	node int
	key  float64
}

// sortChildren orders children by ascending key with an insertion sort.
// There are at most maxTreeType of them.
func sortChildren(c []childOrder) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].key < c[j-1].key; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Nearest finds the leaf closest to co, descending into nearer children
// first and pruning nodes farther than the running best. fn computes the
// actual element distance; if nil, the leaf bounds are used. It returns
// nearest.Index.
func (t *Tree) Nearest(co r3.Vec, nearest *Nearest, fn NearestFunc) int {
	if !t.queryable() {
		return nearest.Index
	}
	t.nearest(0, co, nearest, fn)
	return nearest.Index
}

func (t *Tree) nearest(ni int, co r3.Vec, nearest *Nearest, fn NearestFunc) {
	nd := &t.nodes[ni]
	if nd.isLeaf {
		for _, lf := range t.leaves[nd.first : nd.first+nd.count] {
			d2 := lf.bb.Dist2(co)
			if d2 >= nearest.DistSq {
				continue
			}
			if fn != nil {
				fn(lf.index, co, nearest)
				continue
			}
			*nearest = Nearest{Index: lf.index, Co: lf.bb.Closest(co), DistSq: d2}
		}
		return
	}
	var buf [maxTreeType]childOrder
	children := buf[:0]
	for c := nd.first; c < nd.first+nd.count; c++ {
		d2 := t.nodes[c].bb.Dist2(co)
		if d2 < nearest.DistSq {
			children = append(children, childOrder{node: c, key: d2})
		}
	}
	sortChildren(children)
	for _, c := range children {
		// The best distance may have shrunk since c was ordered.
		if c.key >= nearest.DistSq {
			break
		}
		t.nearest(c.node, co, nearest, fn)
	}
}

// RayCast finds the closest leaf along ray thickened by radius. The ray
// direction is normalized so distances are Euclidean. Leaves farther than
// hit.Dist are ignored. fn computes the element intersection; if nil, the
// leaf bounds' entry point is used. A zero length direction hits nothing.
// It returns hit.Index.
func (t *Tree) RayCast(ray isect.Ray, radius float64, hit *RayHit, fn RayCastFunc) int {
	if !t.queryable() {
		return hit.Index
	}
	dir, length := d3.Unit(ray.Dir)
	if length == 0 {
		return hit.Index
	}
	ray.Dir = dir
	t.raycast(0, ray, d3.InvElem(dir), radius, hit, fn)
	return hit.Index
}

func (t *Tree) raycast(ni int, ray isect.Ray, invDir r3.Vec, radius float64, hit *RayHit, fn RayCastFunc) {
	nd := &t.nodes[ni]
	if nd.isLeaf {
		for _, lf := range t.leaves[nd.first : nd.first+nd.count] {
			tEntry, ok := lf.bb.Inflate(radius).RayEntry(ray.Origin, invDir, hit.Dist)
			if !ok {
				continue
			}
			if fn != nil {
				fn(lf.index, ray, radius, hit)
				continue
			}
			if tEntry < hit.Dist {
				*hit = RayHit{Index: lf.index, Co: ray.At(tEntry), Dist: tEntry}
			}
		}
		return
	}
	var buf [maxTreeType]childOrder
	children := buf[:0]
	for c := nd.first; c < nd.first+nd.count; c++ {
		tEntry, ok := t.nodes[c].bb.Inflate(radius).RayEntry(ray.Origin, invDir, hit.Dist)
		if ok {
			children = append(children, childOrder{node: c, key: tEntry})
		}
	}
	sortChildren(children)
	for _, c := range children {
		if c.key > hit.Dist {
			break
		}
		t.raycast(c.node, ray, invDir, radius, hit, fn)
	}
}

// RayCastAll calls fn for every leaf whose bounds, thickened by radius, the
// ray enters within maxDist. Each call receives its own empty hit limited
// to maxDist. It returns the number of leaves visited.
func (t *Tree) RayCastAll(ray isect.Ray, radius, maxDist float64, fn RayCastFunc) int {
	if !t.queryable() {
		return 0
	}
	dir, length := d3.Unit(ray.Dir)
	if length == 0 {
		return 0
	}
	ray.Dir = dir
	invDir := d3.InvElem(dir)
	count := 0
	var walk func(ni int)
	walk = func(ni int) {
		nd := &t.nodes[ni]
		if !nd.isLeaf {
			for c := nd.first; c < nd.first+nd.count; c++ {
				if _, ok := t.nodes[c].bb.Inflate(radius).RayEntry(ray.Origin, invDir, maxDist); ok {
					walk(c)
				}
			}
			return
		}
		for _, lf := range t.leaves[nd.first : nd.first+nd.count] {
			if _, ok := lf.bb.Inflate(radius).RayEntry(ray.Origin, invDir, maxDist); !ok {
				continue
			}
			count++
			if fn != nil {
				hit := NoHit(maxDist)
				fn(lf.index, ray, radius, &hit)
			}
		}
	}
	if _, ok := t.nodes[0].bb.Inflate(radius).RayEntry(ray.Origin, invDir, maxDist); ok {
		walk(0)
	}
	return count
}

// Range calls fn for every leaf whose bounds are within radius of co and
// returns how many there were. fn may be nil.
func (t *Tree) Range(co r3.Vec, radius float64, fn RangeFunc) int {
	if !t.queryable() {
		return 0
	}
	r2 := radius * radius
	count := 0
	var walk func(ni int)
	walk = func(ni int) {
		nd := &t.nodes[ni]
		if nd.bb.Dist2(co) > r2 {
			return
		}
		if !nd.isLeaf {
			for c := nd.first; c < nd.first+nd.count; c++ {
				walk(c)
			}
			return
		}
		for _, lf := range t.leaves[nd.first : nd.first+nd.count] {
			d2 := lf.bb.Dist2(co)
			if d2 > r2 {
				continue
			}
			count++
			if fn != nil {
				fn(lf.index, co, d2)
			}
		}
	}
	walk(0)
	return count
}

// Overlap returns the pairs of leaves, one from t and one from other, whose
// bounds overlap and for which fn, if not nil, returns true. When other is
// t every unordered pair of distinct leaves is reported once.
func (t *Tree) Overlap(other *Tree, fn OverlapFunc) [][2]int {
	if !t.queryable() || !other.queryable() {
		return nil
	}
	o := overlapper{a: t, b: other, fn: fn, self: t == other}
	o.walk(0, 0)
	return o.pairs
}

type overlapper struct {
	a, b  *Tree
	fn    OverlapFunc
	self  bool
	pairs [][2]int
}

func (o *overlapper) walk(na, nb int) {
	a, b := &o.a.nodes[na], &o.b.nodes[nb]
	if !a.bb.Overlaps(b.bb) {
		return
	}
	switch {
	case o.self && na == nb:
		if a.isLeaf {
			o.leafPairs(a, b)
			return
		}
		for i := a.first; i < a.first+a.count; i++ {
			for j := i; j < a.first+a.count; j++ {
				o.walk(i, j)
			}
		}
	case a.isLeaf && b.isLeaf:
		o.leafPairs(a, b)
	case a.isLeaf:
		for j := b.first; j < b.first+b.count; j++ {
			o.walk(na, j)
		}
	case b.isLeaf:
		for i := a.first; i < a.first+a.count; i++ {
			o.walk(i, nb)
		}
	default:
		for i := a.first; i < a.first+a.count; i++ {
			for j := b.first; j < b.first+b.count; j++ {
				o.walk(i, j)
			}
		}
	}
}

func (o *overlapper) leafPairs(a, b *node) {
	same := o.self && a == b
	for i := a.first; i < a.first+a.count; i++ {
		start := b.first
		if same {
			start = i + 1
		}
		for j := start; j < b.first+b.count; j++ {
			la, lb := o.a.leaves[i], o.b.leaves[j]
			if !la.bb.Overlaps(lb.bb) {
				continue
			}
			if o.fn == nil || o.fn(la.index, lb.index) {
				o.pairs = append(o.pairs, [2]int{la.index, lb.index})
			}
		}
	}
}
