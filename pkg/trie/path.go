package trie

import (
	"strings"
	"time"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/sampling"
)

// SubPath is a node of the deduplicated trie of path fragments internal
// to one subvolume. It carries no payload beyond the structural
// parent/name pair the generic Node already provides.
type SubPath = *Node[struct{}]

// SubPathTrie interns SubPath fragments.
type SubPathTrie struct {
	*Trie[struct{}]
}

// NewSubPathTrie creates an empty SubPathTrie. The slab may be indexed
// or not: the export codec assigns SubPath table indices itself and does
// not use slab ordinals.
func NewSubPathTrie(a *arena.Arena, slab *arena.Slab[Node[struct{}]]) *SubPathTrie {
	return &SubPathTrie{Trie: New(a, slab)}
}

// GlobalPath is a linked chain (parent, sub) representing the
// concatenation of a subvolume-mount subpath with an in-subvolume path.
// Nodes are interned: the same (parent, sub) pair always yields the same
// *GlobalPath, so shared suffixes are never duplicated.
type GlobalPath struct {
	Parent   *GlobalPath
	Sub      SubPath
	children map[SubPath]*GlobalPath
}

// GlobalPathTable interns GlobalPath chains.
type GlobalPathTable struct {
	slab  *arena.Slab[GlobalPath]
	roots map[SubPath]*GlobalPath
}

// NewGlobalPathTable creates an empty GlobalPathTable backed by slab.
func NewGlobalPathTable(slab *arena.Slab[GlobalPath]) *GlobalPathTable {
	return &GlobalPathTable{slab: slab, roots: make(map[SubPath]*GlobalPath)}
}

// Append returns the interned GlobalPath for (parent, sub), allocating
// one if this combination hasn't been seen before.
func (g *GlobalPathTable) Append(parent *GlobalPath, sub SubPath) *GlobalPath {
	var m map[SubPath]*GlobalPath
	if parent == nil {
		m = g.roots
	} else {
		if parent.children == nil {
			parent.children = make(map[SubPath]*GlobalPath)
		}
		m = parent.children
	}
	if existing, ok := m[sub]; ok {
		return existing
	}
	node := g.slab.Alloc()
	node.Parent = parent
	node.Sub = sub
	m[sub] = node
	return node
}

// FullPath renders g as a '/'-joined absolute-ish path, oldest fragment
// (outermost mount) first.
func (g *GlobalPath) FullPath() string {
	var chain []*GlobalPath
	for cur := g; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	segs := make([]string, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		if p := FullPath(chain[i].Sub); p != "" {
			segs = append(segs, p)
		}
	}
	return strings.Join(segs, "/")
}

// Length is the sum of fragment lengths along the chain, used by the
// representative-selection "shorter path" tie-break.
func (g *GlobalPath) Length() int {
	total := 0
	for cur := g; cur != nil; cur = cur.Parent {
		total += Depth(cur.Sub)
	}
	return total
}

// CompareGlobalPath orders two GlobalPaths lexicographically by their
// full rendered path.
func CompareGlobalPath(a, b *GlobalPath) int {
	if a == b {
		return 0
	}
	return strings.Compare(a.FullPath(), b.FullPath())
}

// SampleKind selects which of a BrowserPath node's three counters an
// operation targets.
type SampleKind int

const (
	Represented SampleKind = iota
	Exclusive
	Shared
	numSampleKinds
)

// offsetRingSize caps how many sample offsets a node retains for
// display; beyond this it keeps only the count, not every offset.
const offsetRingSize = 3

// OffsetRing keeps the most recent offsetRingSize observed offsets for
// display purposes.
type OffsetRing struct {
	items [offsetRingSize]sampling.Offset
	count int
	next  int
}

// Push records o as the most recent observed offset.
func (r *OffsetRing) Push(o sampling.Offset) {
	r.items[r.next] = o
	r.next = (r.next + 1) % offsetRingSize
	if r.count < offsetRingSize {
		r.count++
	}
}

// Items returns the kept offsets, oldest first.
func (r *OffsetRing) Items() []sampling.Offset {
	out := make([]sampling.Offset, 0, r.count)
	start := (r.next - r.count + offsetRingSize) % offsetRingSize
	for i := 0; i < r.count; i++ {
		out = append(out, r.items[(start+i)%offsetRingSize])
	}
	return out
}

// SetItems replaces the ring's contents, used by the import codec to
// restore exactly the offsets that were persisted.
func (r *OffsetRing) SetItems(items []sampling.Offset) {
	*r = OffsetRing{}
	for _, it := range items {
		r.Push(it)
	}
}

// SampleStats is one of a BrowserPath node's three counters
// (represented/exclusive/shared): a sample count, accumulated duration,
// and a small ring of recent offsets.
type SampleStats struct {
	Samples  uint64
	Duration time.Duration
	Offsets  OffsetRing
}

// MarkState is the optional per-node user annotation consumed by the
// deletion feature (out of scope here) and by representative-selection
// overrides.
type MarkState int

const (
	MarkNone MarkState = iota
	MarkPrefer
	MarkIgnore
)

// BrowserPathData is the aggregate payload carried by every BrowserPath
// node.
type BrowserPathData struct {
	Counters [numSampleKinds]SampleStats

	DistributedSamples  float64
	DistributedDuration time.Duration

	SeenAs map[*GlobalPath]int

	Mark MarkState
}

// BrowserPath is a node of the trie rooted at the hierarchy a consumer
// browses.
type BrowserPath = *Node[BrowserPathData]

// BrowserTrie interns BrowserPath nodes.
type BrowserTrie struct {
	*Trie[BrowserPathData]
}

// NewBrowserTrie creates an empty BrowserTrie.
func NewBrowserTrie(a *arena.Arena, slab *arena.Slab[Node[BrowserPathData]]) *BrowserTrie {
	return &BrowserTrie{Trie: New(a, slab)}
}

// AddSample increments Samples/Duration for kind at n and, for
// Represented and Shared, additively up the parent chain, which is what
// keeps the parent-sum invariant (a node's count equals the sum of its
// children's counts) true after every update. Exclusive increments are
// never propagated: callers wanting exclusive accounting must target
// the common-prefix node directly via AddExclusive.
func AddSample(kind SampleKind, n BrowserPath, d time.Duration, offs ...sampling.Offset) {
	if kind == Exclusive {
		AddExclusive(n, d, offs...)
		return
	}
	for cur := n; cur != nil; cur = cur.Parent {
		c := &cur.Data.Counters[kind]
		c.Samples++
		c.Duration += d
		for _, o := range offs {
			c.Offsets.Push(o)
		}
	}
}

// AddExclusive increments the exclusive counter at exactly n, with no
// propagation to ancestors, matching the "exclusive does not sum to
// parent" invariant.
func AddExclusive(n BrowserPath, d time.Duration, offs ...sampling.Offset) {
	c := &n.Data.Counters[Exclusive]
	c.Samples++
	c.Duration += d
	for _, o := range offs {
		c.Offsets.Push(o)
	}
}

// AddDistributedSample increments distributed_samples/duration by
// weight*1 and weight*d at n and additively up its parent chain.
func AddDistributedSample(n BrowserPath, weight float64, d time.Duration) {
	wd := time.Duration(weight * float64(d))
	for cur := n; cur != nil; cur = cur.Parent {
		cur.Data.DistributedSamples += weight
		cur.Data.DistributedDuration += wd
	}
}

// AddSeenAs records that n was also reachable as p, for the Shares
// panel. Not propagated to ancestors: it is a per-node display
// annotation, not a summed statistic.
func AddSeenAs(n BrowserPath, p *GlobalPath) {
	if n.Data.SeenAs == nil {
		n.Data.SeenAs = make(map[*GlobalPath]int)
	}
	n.Data.SeenAs[p]++
}
