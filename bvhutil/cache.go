package bvhutil

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/soypat/shrinkwrap/bvh"
	"github.com/soypat/shrinkwrap/editmesh"
	"github.com/soypat/shrinkwrap/internal/logger"
	"github.com/soypat/shrinkwrap/mesh"
	"go.uber.org/zap"
)

type cacheEntry struct {
	mu    sync.Mutex
	built bool
	tree  *bvh.Tree
}

// Cache holds at most one tree per CacheType. Each key is built at most
// once and builds of different keys do not block each other. An empty
// result is cached like any other.
type Cache struct {
	freed   atomic.Bool
	entries [numCacheTypes]cacheEntry
}

func NewCache() *Cache {
	return &Cache{}
}

// GetOrBuild returns the tree cached under key, calling build to create it
// if this is the first request. Concurrent requests for the same key wait
// for the single build and observe its result.
func (c *Cache) GetOrBuild(key CacheType, build func() *bvh.Tree) *bvh.Tree {
	if key < 0 || key >= numCacheTypes {
		panic("bvhutil: invalid cache type " + key.String())
	}
	e := &c.entries[key]
	e.mu.Lock()
	defer e.mu.Unlock()
	if c.freed.Load() {
		panic("bvhutil: use of freed cache")
	}
	if e.built {
		return e.tree
	}
	start := time.Now()
	e.tree = build()
	e.built = true
	elements := 0
	if e.tree != nil {
		elements = e.tree.Len()
	}
	logger.Debug("bvh tree built",
		zap.Stringer("key", key),
		zap.Int("elements", elements),
		zap.Duration("took", time.Since(start)),
	)
	return e.tree
}

// Built reports whether key has been built, possibly to an empty result.
func (c *Cache) Built(key CacheType) bool {
	e := &c.entries[key]
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.built
}

// HasTree reports whether tree is owned by some entry of the cache.
// Trees are compared by identity.
func (c *Cache) HasTree(tree *bvh.Tree) bool {
	if tree == nil {
		return false
	}
	for i := range c.entries {
		e := &c.entries[i]
		e.mu.Lock()
		found := e.built && e.tree == tree
		e.mu.Unlock()
		if found {
			return true
		}
	}
	return false
}

// Free destroys every built tree exactly once. It is safe to call on a
// cache with any subset of keys built and to call more than once.
func (c *Cache) Free() {
	if !c.freed.CompareAndSwap(false, true) {
		return
	}
	for i := range c.entries {
		e := &c.entries[i]
		e.mu.Lock()
		if e.tree != nil {
			e.tree.Free()
		}
		e.tree = nil
		e.built = false
		e.mu.Unlock()
	}
}

type meshCacheKey struct{}

// MeshCache returns the tree cache attached to m, creating it on first use.
// The cache is freed when m is invalidated.
func MeshCache(m *mesh.Mesh) *Cache {
	return m.Derived(meshCacheKey{}, func() any { return NewCache() }).(*Cache)
}

// EditMeshCache returns the tree cache attached to em.
func EditMeshCache(em *editmesh.Mesh) *Cache {
	return em.Derived(meshCacheKey{}, func() any { return NewCache() }).(*Cache)
}

// FromMesh returns a wrapper over m's cached tree for key, building the tree
// with branching factor treeType if it is absent. treeType only affects the
// first build of a key. Edit mesh keys are not valid here.
func FromMesh(m *mesh.Mesh, key CacheType, treeType int) BVHFromMesh {
	if key >= EditVerts {
		panic("bvhutil: edit mesh cache type " + key.String() + " on mesh")
	}
	tree := MeshCache(m).GetOrBuild(key, func() *bvh.Tree {
		return buildMeshTree(m, key, BuildParams{TreeType: treeType})
	})
	// Geometry arrays are gathered after the build lock is released.
	w := meshWrapper(m, key, false)
	w.Index = borrow(tree)
	return w
}

// BuildMesh builds a tree for key over m without caching it. The wrapper
// owns the tree.
func BuildMesh(m *mesh.Mesh, key CacheType, p BuildParams) BVHFromMesh {
	if key >= EditVerts {
		panic("bvhutil: edit mesh cache type " + key.String() + " on mesh")
	}
	w := meshWrapper(m, key, p.CopyArrays)
	if p.Mask == nil {
		p.Mask = meshMask(m, key)
		p.ActiveCount = 0
	}
	switch key {
	case Verts, LooseVerts:
		w.Index = own(BuildVerts(w.Positions, p))
	case Edges, LooseEdges:
		w.Index = own(BuildEdges(w.Positions, w.Edges, p))
	case Faces:
		w.Index = own(BuildFaces(w.Positions, w.FaceOffsets, w.CornerVerts, p))
	default:
		w.Index = own(BuildCornerTris(w.Positions, w.CornerVerts, w.CornerTris, p))
	}
	return w
}

func buildMeshTree(m *mesh.Mesh, key CacheType, p BuildParams) *bvh.Tree {
	p.Mask = meshMask(m, key)
	switch key {
	case Verts, LooseVerts:
		return BuildVerts(m.Positions, p)
	case Edges, LooseEdges:
		return BuildEdges(m.Positions, m.Edges, p)
	case Faces:
		return BuildFaces(m.Positions, m.FaceOffsets, m.CornerVerts, p)
	}
	return BuildCornerTris(m.Positions, m.CornerVerts, m.CornerTris(), p)
}

// meshMask returns the active element mask implied by key, nil for all.
func meshMask(m *mesh.Mesh, key CacheType) []bool {
	switch key {
	case LooseVerts:
		return m.LooseVerts().Bits
	case LooseEdges:
		return m.LooseEdges().Bits
	case CornerTrisNoHidden:
		if m.HideFace == nil {
			return nil
		}
		faces := m.CornerTriFaces()
		mask := make([]bool, len(faces))
		for i, f := range faces {
			mask[i] = !m.HideFace[f]
		}
		return mask
	}
	return nil
}

func meshWrapper(m *mesh.Mesh, key CacheType, copyArrays bool) BVHFromMesh {
	w := BVHFromMesh{
		Type:      key,
		Positions: m.Positions,
	}
	switch key {
	case Edges, LooseEdges:
		w.Edges = m.Edges
	case Faces:
		w.FaceOffsets = m.FaceOffsets
		w.CornerVerts = m.CornerVerts
		w.CornerTris = m.CornerTris()
		w.faceTris = faceTriOffsets(m.NumFaces(), m.CornerTriFaces())
	case CornerTris, CornerTrisNoHidden:
		w.CornerVerts = m.CornerVerts
		w.CornerTris = m.CornerTris()
	}
	if copyArrays {
		w.Positions = append(w.Positions[:0:0], w.Positions...)
		w.Edges = append(w.Edges[:0:0], w.Edges...)
		w.FaceOffsets = append(w.FaceOffsets[:0:0], w.FaceOffsets...)
		w.CornerVerts = append(w.CornerVerts[:0:0], w.CornerVerts...)
		w.CornerTris = append(w.CornerTris[:0:0], w.CornerTris...)
	}
	return w
}

func faceTriOffsets(numFaces int, triFaces []int) []int {
	offsets := make([]int, numFaces+1)
	for _, f := range triFaces {
		offsets[f+1]++
	}
	for f := 0; f < numFaces; f++ {
		offsets[f+1] += offsets[f]
	}
	return offsets
}

// FromEditMesh returns a wrapper over em's cached tree for key, building the
// tree if it is absent. Only edit mesh keys are valid.
func FromEditMesh(em *editmesh.Mesh, key CacheType, treeType int) BVHFromEditMesh {
	if key < EditVerts || key >= numCacheTypes {
		panic("bvhutil: cache type " + key.String() + " on edit mesh")
	}
	tree := EditMeshCache(em).GetOrBuild(key, func() *bvh.Tree {
		return buildEditMeshTree(em, key, BuildParams{TreeType: treeType})
	})
	w := BVHFromEditMesh{Type: key, Mesh: em, Index: borrow(tree)}
	if key == EditCornerTris {
		w.LoopTris = em.LoopTris()
	}
	return w
}

// BuildEditMesh builds an uncached tree for key over em. The wrapper owns
// the tree.
func BuildEditMesh(em *editmesh.Mesh, key CacheType, p BuildParams) BVHFromEditMesh {
	if key < EditVerts || key >= numCacheTypes {
		panic("bvhutil: cache type " + key.String() + " on edit mesh")
	}
	w := BVHFromEditMesh{Type: key, Mesh: em, Index: own(buildEditMeshTree(em, key, p))}
	if key == EditCornerTris {
		w.LoopTris = em.LoopTris()
	}
	return w
}

func buildEditMeshTree(em *editmesh.Mesh, key CacheType, p BuildParams) *bvh.Tree {
	switch key {
	case EditVerts:
		return BuildEditVerts(em, p)
	case EditEdges:
		return BuildEditEdges(em, p)
	}
	return BuildEditLoopTris(em, p)
}
