package codec

import "github.com/elee1766/btdu/pkg/trie"

// encodeMarksTable writes the sparse Marks table: a varint count
// followed by (browser_root_index, bool_as_byte) pairs for every node
// whose Mark is set. The three-state MarkState collapses to a single
// bool here, matching the literal (index, bool) pair the format
// specifies: the prefer/ignore distinction isn't otherwise consumed,
// since the deletion workflow that would read it is out of scope.
func encodeMarksTable(v *visitor, order []trie.BrowserPath) {
	var idxs []int
	for i, n := range order {
		if n.Data.Mark != trie.MarkNone {
			idxs = append(idxs, i)
		}
	}
	n := uint64(len(idxs))
	v.varint(&n)
	for _, i := range idxs {
		idx := i
		marked := true
		v.varintInt(&idx)
		v.boolean(&marked)
	}
}

// decodeMarksTable reads a Marks table written by encodeMarksTable,
// applying MarkPrefer to every indexed node in nodes.
func decodeMarksTable(v *visitor, nodes []trie.BrowserPath) error {
	var n uint64
	v.varint(&n)
	if v.err != nil {
		return v.err
	}
	for i := uint64(0); i < n; i++ {
		var idx int
		var marked bool
		v.varintInt(&idx)
		v.boolean(&marked)
		if v.err != nil {
			return v.err
		}
		if marked && idx >= 0 && idx < len(nodes) {
			nodes[idx].Data.Mark = trie.MarkPrefer
		}
	}
	return v.err
}
