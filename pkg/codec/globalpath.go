package codec

import "github.com/elee1766/btdu/pkg/trie"

// globalPathIndexer assigns each distinct *trie.GlobalPath referenced
// from a BrowserPath node's SeenAs set a stable table index, parent
// before child. GlobalPath identity is the table index itself: two
// GlobalPath values get distinct indices even when their Sub chains
// render to the same string, which is what lets SeenAs reference a
// specific subvolume-qualified path rather than a bare rendered string.
type globalPathIndexer struct {
	index map[*trie.GlobalPath]int
	order []*trie.GlobalPath
	subs  *subPathIndexer
}

func newGlobalPathIndexer(subs *subPathIndexer) *globalPathIndexer {
	return &globalPathIndexer{index: make(map[*trie.GlobalPath]int), subs: subs}
}

// indexOf returns g's table index, registering g's parent chain and its
// Sub fragment chain first. Returns -1 for a nil GlobalPath.
func (x *globalPathIndexer) indexOf(g *trie.GlobalPath) int {
	if g == nil {
		return -1
	}
	if i, ok := x.index[g]; ok {
		return i
	}
	x.indexOf(g.Parent)
	x.subs.indexOf(g.Sub)
	i := len(x.order)
	x.order = append(x.order, g)
	x.index[g] = i
	return i
}

// encodeGlobalPathTable writes the GlobalPath-root table: varint count,
// then each record's parent index (-1 for none) and SubPath-table index.
func encodeGlobalPathTable(v *visitor, x *globalPathIndexer) {
	n := uint64(len(x.order))
	v.varint(&n)
	for _, g := range x.order {
		parentIdx := -1
		if g.Parent != nil {
			parentIdx = x.index[g.Parent]
		}
		subIdx := x.subs.index[g.Sub]
		v.index(&parentIdx)
		v.varintInt(&subIdx)
	}
}

// decodeGlobalPathTable reads a GlobalPath-root table written by
// encodeGlobalPathTable, interning each entry through table so that
// identical (parent, sub) pairs collapse exactly as they would have
// during live sampling.
func decodeGlobalPathTable(v *visitor, table *trie.GlobalPathTable, subNodes []trie.SubPath) ([]*trie.GlobalPath, error) {
	var n uint64
	v.varint(&n)
	if v.err != nil {
		return nil, v.err
	}
	nodes := make([]*trie.GlobalPath, 0, n)
	for i := uint64(0); i < n; i++ {
		var parentIdx, subIdx int
		v.index(&parentIdx)
		v.varintInt(&subIdx)
		if v.err != nil {
			return nil, v.err
		}
		var parent *trie.GlobalPath
		if parentIdx >= 0 {
			parent = nodes[parentIdx]
		}
		nodes = append(nodes, table.Append(parent, subNodes[subIdx]))
	}
	return nodes, nil
}
