package codec

import "sort"

// stringTable interns strings for the export format: every repeated
// name (trie segments, error messages) is written once, sorted, and
// referenced by index elsewhere in the file. Collection and lookup are
// separate phases: add gathers every string that will appear anywhere
// in the file, then finalize fixes the sorted order that indexOf and
// encode use afterward — a node's string index must be stable before
// any table that references it is written, and the final index only
// exists once every string has been seen and sorted.
type stringTable struct {
	seen  map[string]struct{}
	list  []string
	index map[string]int
}

func newStringTable() *stringTable {
	return &stringTable{seen: make(map[string]struct{})}
}

// add records s as present in the table. Safe to call repeatedly with
// the same string before finalize.
func (t *stringTable) add(s string) {
	t.seen[s] = struct{}{}
}

// finalize fixes the sorted-unique order. No more add calls are valid
// afterward.
func (t *stringTable) finalize() {
	t.list = make([]string, 0, len(t.seen))
	for s := range t.seen {
		t.list = append(t.list, s)
	}
	sort.Strings(t.list)
	t.index = make(map[string]int, len(t.list))
	for i, s := range t.list {
		t.index[s] = i
	}
	t.seen = nil
}

// indexOf returns s's index in the finalized table.
func (t *stringTable) indexOf(s string) int {
	return t.index[s]
}

// encode writes the table: varint count, then each string as a
// length-prefixed byte string, in sorted order.
func (t *stringTable) encode(v *visitor) {
	n := uint64(len(t.list))
	v.varint(&n)
	for _, s := range t.list {
		v.str(&s)
	}
}

func decodeStringTable(v *visitor) ([]string, error) {
	var n uint64
	v.varint(&n)
	if v.err != nil {
		return nil, v.err
	}
	out := make([]string, n)
	for i := range out {
		v.str(&out[i])
	}
	if v.err != nil {
		return nil, v.err
	}
	return out, nil
}
