// Package trie implements the deduplicated path tries that back this
// module's data model: SubPath (in-subvolume fragments), GlobalPath
// (subvolume-qualified chains), and BrowserPath (the aggregate hierarchy
// presented to consumers). SubPath and BrowserPath share one generic
// interning core (Trie); GlobalPath is interned by GlobalPathTable.
package trie

import (
	"bytes"
	"errors"
	"sort"

	"github.com/elee1766/btdu/pkg/arena"
)

// ErrEmptyName is returned by AppendName for a zero-length segment.
var ErrEmptyName = errors.New("trie: empty name")

// ErrSlashInName is returned by AppendName for a segment containing '/'.
var ErrSlashInName = errors.New("trie: name contains '/'")

// SpecialPrefix marks a node name as synthetic (not a real filesystem
// path component). Consumers strip it before display.
const SpecialPrefix = byte(0)

// Special prepends the NUL marker byte to name, producing a synthetic
// node name such as "\x00UNALLOCATED".
func Special(name string) string {
	b := make([]byte, 0, len(name)+1)
	b = append(b, SpecialPrefix)
	b = append(b, name...)
	return string(b)
}

// IsSpecial reports whether name carries the synthetic-node marker.
func IsSpecial(name string) bool {
	return len(name) > 0 && name[0] == SpecialPrefix
}

// StripSpecial removes the synthetic-node marker if present.
func StripSpecial(name string) string {
	if IsSpecial(name) {
		return name[1:]
	}
	return name
}

// Node is one interned trie node carrying a payload of type T. Nodes
// are allocated from an arena slab and never freed individually;
// parents are always allocated before their children, so a Node's
// Parent pointer is valid for the lifetime of the trie.
type Node[T any] struct {
	Parent   *Node[T]
	Name     string
	children map[string]*Node[T]
	Data     T
}

// Trie is the generic interning core shared by the SubPath and
// BrowserPath tries. It owns the arena-backed node storage and the
// root node.
type Trie[T any] struct {
	arena *arena.Arena
	slab  *arena.Slab[Node[T]]
	root  *Node[T]
}

// New creates an empty Trie. a backs interned name strings; slab backs
// the nodes themselves. The trie never uses the slab's ordinal lookups,
// so the slab may be indexed or not.
func New[T any](a *arena.Arena, slab *arena.Slab[Node[T]]) *Trie[T] {
	t := &Trie[T]{arena: a, slab: slab}
	root := slab.Alloc()
	root.Parent = nil
	root.Name = ""
	root.children = make(map[string]*Node[T])
	t.root = root
	return t
}

// Root returns the trie's root node.
func (t *Trie[T]) Root() *Node[T] {
	return t.root
}

// AppendName interns a single path segment under parent, returning the
// existing child if one with this name already exists, or allocating
// and linking a new one otherwise. Empty names and names containing '/'
// are rejected. For a name carrying the synthetic-node marker
// (SpecialPrefix) the slash check runs on the part after the marker
// byte, so a special name containing '/' is rejected as well.
func (t *Trie[T]) AppendName(parent *Node[T], name string) (*Node[T], error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	checkable := name
	if IsSpecial(name) {
		checkable = name[1:]
	}
	if bytes.IndexByte([]byte(checkable), '/') >= 0 {
		return nil, ErrSlashInName
	}
	if parent.children == nil {
		parent.children = make(map[string]*Node[T])
	}
	if existing, ok := parent.children[name]; ok {
		return existing, nil
	}
	interned := t.arena.AllocString(name)
	child := t.slab.Alloc()
	child.Parent = parent
	child.Name = interned
	child.children = make(map[string]*Node[T])
	parent.children[interned] = child
	return child, nil
}

// AppendPath splits relPath on '/' and interns each segment in turn
// starting from parent, returning the final node.
func (t *Trie[T]) AppendPath(parent *Node[T], relPath string) (*Node[T], error) {
	cur := parent
	if relPath == "" {
		return cur, nil
	}
	start := 0
	for i := 0; i <= len(relPath); i++ {
		if i == len(relPath) || relPath[i] == '/' {
			if i > start {
				seg := relPath[start:i]
				var err error
				cur, err = t.AppendName(cur, seg)
				if err != nil {
					return nil, err
				}
			}
			start = i + 1
		}
	}
	return cur, nil
}

// Depth returns the distance from n to the trie root.
func Depth[T any](n *Node[T]) int {
	d := 0
	for n.Parent != nil {
		d++
		n = n.Parent
	}
	return d
}

// CommonPrefix walks to the deepest ancestor shared by all of nodes. It
// equalizes chain lengths by climbing the longer chains first, then
// climbs all in lockstep until the pointers coincide. Returns nil if
// nodes is empty.
func CommonPrefix[T any](nodes []*Node[T]) *Node[T] {
	if len(nodes) == 0 {
		return nil
	}
	cur := make([]*Node[T], len(nodes))
	copy(cur, nodes)
	depths := make([]int, len(cur))
	maxDepth := 0
	for i, n := range cur {
		depths[i] = Depth(n)
		if depths[i] > maxDepth {
			maxDepth = depths[i]
		}
	}
	for i := range cur {
		for depths[i] < maxDepth {
			cur[i] = cur[i].Parent
			depths[i]++
		}
	}
	for {
		allSame := true
		for i := 1; i < len(cur); i++ {
			if cur[i] != cur[0] {
				allSame = false
				break
			}
		}
		if allSame {
			return cur[0]
		}
		for i := range cur {
			cur[i] = cur[i].Parent
		}
	}
}

// FullPath returns the '/'-joined chain of names from root to n,
// exclusive of the trie root itself.
func FullPath[T any](n *Node[T]) string {
	var segs []string
	for cur := n; cur != nil && cur.Parent != nil; cur = cur.Parent {
		segs = append(segs, cur.Name)
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return joinSlash(segs)
}

func joinSlash(segs []string) string {
	total := 0
	for i, s := range segs {
		total += len(s)
		if i > 0 {
			total++
		}
	}
	buf := make([]byte, 0, total)
	for i, s := range segs {
		if i > 0 {
			buf = append(buf, '/')
		}
		buf = append(buf, s...)
	}
	return string(buf)
}

// Compare returns the lexicographic order of a and b's concatenated
// byte paths, recursing from the deepest shared prefix: ancestors above
// the LCA never affect the comparison.
func Compare[T any](a, b *Node[T]) int {
	if a == b {
		return 0
	}
	return bytes.Compare([]byte(FullPath(a)), []byte(FullPath(b)))
}

// Children returns n's children sorted by name, for deterministic
// iteration (display, export).
func Children[T any](n *Node[T]) []*Node[T] {
	out := make([]*Node[T], 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
