package codec

import (
	"github.com/elee1766/btdu/pkg/trie"
)

// nodeRecord holds one exported trie node's parent position in the
// flattened table (-1 for a direct child of the trie root). The node's
// name is interned and written separately, alongside this record.
type nodeRecord struct {
	parentIdx int
}

// flattenNodes walks n's subtree in a stable pre-order (children
// visited in Children()'s sorted order), recording each descendant's
// (name, parent-position) pair. Parents always precede their children,
// so a decoder can replay the list with a single forward pass.
func flattenNodes[T any](root *trie.Node[T]) ([]*trie.Node[T], []nodeRecord, map[*trie.Node[T]]int) {
	var order []*trie.Node[T]
	var recs []nodeRecord
	pos := map[*trie.Node[T]]int{root: -1}

	var walk func(n *trie.Node[T])
	walk = func(n *trie.Node[T]) {
		for _, c := range trie.Children(n) {
			order = append(order, c)
			pos[c] = len(order) - 1
			recs = append(recs, nodeRecord{parentIdx: pos[n]})
			walk(c)
		}
	}
	walk(root)
	return order, recs, pos
}

// encodeNodeTable writes the BrowserPath-root table for a node list
// already flattened by flattenNodes: count, then each record's parent
// index and name index. strings must already be finalized, since every
// name's index must be stable before this table is written.
func encodeNodeTable[T any](v *visitor, order []*trie.Node[T], recs []nodeRecord, strings *stringTable) {
	n := uint64(len(order))
	v.varint(&n)
	for i, node := range order {
		idx := strings.indexOf(node.Name)
		v.index(&recs[i].parentIdx)
		v.varintInt(&idx)
	}
}

// decodeNodeTable reads a node table written by encodeNodeTable and
// replays it against a fresh trie, returning the nodes in table order
// (index i is the node originally exported at position i).
func decodeNodeTable[T any](v *visitor, t *trie.Trie[T], strings []string) ([]*trie.Node[T], error) {
	var n uint64
	v.varint(&n)
	if v.err != nil {
		return nil, v.err
	}
	nodes := make([]*trie.Node[T], 0, n)
	for i := uint64(0); i < n; i++ {
		var parentIdx, nameIdx int
		v.index(&parentIdx)
		v.varintInt(&nameIdx)
		if v.err != nil {
			return nil, v.err
		}
		parent := t.Root()
		if parentIdx >= 0 {
			parent = nodes[parentIdx]
		}
		node, err := t.AppendName(parent, strings[nameIdx])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
