package codec

import (
	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/trie"
)

// subPathIndexer assigns each distinct SubPath node reachable from a set
// of referenced GlobalPath chains a stable table index, parent before
// child, so the SubPath table can be replayed in a single forward pass.
// Unlike flattenNodes, it never walks a full trie subtree: SubPath
// fragments live in one SubPathTrie per subvolume, and only the
// fragments actually reachable from an exported GlobalPath ever need a
// table entry.
type subPathIndexer struct {
	index map[trie.SubPath]int
	order []trie.SubPath
}

func newSubPathIndexer() *subPathIndexer {
	return &subPathIndexer{index: make(map[trie.SubPath]int)}
}

// indexOf returns n's table index, registering n (after its parent) the
// first time it's seen. A SubPathTrie's own root is never given an
// entry: it is represented by -1 everywhere, the same sentinel for every
// subvolume's root, since GlobalPath-root table indices — not SubPath
// structure — are what keep chains from different subvolumes distinct.
func (x *subPathIndexer) indexOf(n trie.SubPath) int {
	if n.Parent == nil {
		return -1
	}
	if i, ok := x.index[n]; ok {
		return i
	}
	x.indexOf(n.Parent)
	i := len(x.order)
	x.order = append(x.order, n)
	x.index[n] = i
	return i
}

// encodeSubPathTable writes the SubPath table: varint count, then each
// record as a delta-encoded (name_index, parent_index) pair.
func encodeSubPathTable(v *visitor, x *subPathIndexer, strings *stringTable) {
	n := uint64(len(x.order))
	v.varint(&n)
	prevName, prevParent := 0, 0
	for _, node := range x.order {
		nameIdx := strings.indexOf(node.Name)
		parentIdx := -1
		if node.Parent != nil {
			if p, ok := x.index[node.Parent]; ok {
				parentIdx = p
			}
		}
		v.deltaIndex(&nameIdx, &prevName)
		v.deltaIndex(&parentIdx, &prevParent)
	}
}

// decodeSubPathTable reads a SubPath table written by encodeSubPathTable.
// Entries are allocated directly from slab rather than interned through
// AppendName: two fragments from different subvolumes that happen to
// share a name (e.g. two "home" directories) must remain distinct nodes,
// and table-index identity already guarantees that without needing
// name-based deduplication. Every parent_index of -1 is attached to a
// single shared virtual root sentinel, since SubPath structure plays no
// role in GlobalPath identity — only the GlobalPath-root table's own
// index does.
func decodeSubPathTable(v *visitor, slab *arena.Slab[trie.Node[struct{}]], strings []string) ([]trie.SubPath, error) {
	var n uint64
	v.varint(&n)
	if v.err != nil {
		return nil, v.err
	}
	virtualRoot := slab.Alloc()
	nodes := make([]trie.SubPath, 0, n)
	prevName, prevParent := 0, 0
	for i := uint64(0); i < n; i++ {
		var nameIdx, parentIdx int
		v.deltaIndex(&nameIdx, &prevName)
		v.deltaIndex(&parentIdx, &prevParent)
		if v.err != nil {
			return nil, v.err
		}
		node := slab.Alloc()
		node.Name = strings[nameIdx]
		if parentIdx < 0 {
			node.Parent = virtualRoot
		} else {
			node.Parent = nodes[parentIdx]
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
