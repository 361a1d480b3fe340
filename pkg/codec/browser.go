package codec

import (
	"io"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/trie"
)

// Snapshot is what Import reconstructs from an export file: enough to
// browse and compare a session's accumulated statistics, but not a live
// classifier.Shared (importing a file never resumes sampling into it).
type Snapshot struct {
	Header      Header
	Browser     *trie.BrowserTrie
	SampleCount uint64
}

// Export writes header, then six tables in order: string table, SubPath
// table, GlobalPath-root table, BrowserPath-root table, a SharingGroup
// payload per BrowserPath-root entry (same order), and the Marks table,
// followed by the aggregate sample count.
func Export(w io.Writer, h Header, browser *trie.BrowserTrie, sampleCount uint64) error {
	if err := WriteHeader(w, h); err != nil {
		return err
	}

	root := browser.Root()
	order, recs, _ := flattenNodes(root)

	subs := newSubPathIndexer()
	gpx := newGlobalPathIndexer(subs)
	for _, n := range order {
		for p := range n.Data.SeenAs {
			gpx.indexOf(p)
		}
	}

	st := newStringTable()
	for _, n := range order {
		st.add(n.Name)
	}
	for _, n := range subs.order {
		st.add(n.Name)
	}
	st.finalize()

	v := newVisitor(w, nil, true)
	st.encode(v)
	encodeSubPathTable(v, subs, st)
	encodeGlobalPathTable(v, gpx)
	encodeNodeTable(v, order, recs, st)

	for _, node := range order {
		encodeBrowserPayload(v, gpx, &node.Data)
	}

	encodeMarksTable(v, order)

	count := sampleCount
	v.varint(&count)
	return v.err
}

// Import reads a file written by Export and reconstructs a fresh
// BrowserTrie with identical structure and per-node statistics.
func Import(r io.Reader) (*Snapshot, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	v := newVisitor(nil, r, false)
	strTable, err := decodeStringTable(v)
	if err != nil {
		return nil, err
	}

	subSlab := arena.NewSlab[trie.Node[struct{}]](256, false)
	subNodes, err := decodeSubPathTable(v, subSlab, strTable)
	if err != nil {
		return nil, err
	}

	globalSlab := arena.NewSlab[trie.GlobalPath](256, false)
	globalTable := trie.NewGlobalPathTable(globalSlab)
	globalNodes, err := decodeGlobalPathTable(v, globalTable, subNodes)
	if err != nil {
		return nil, err
	}

	a := arena.New(64 * 1024)
	browserSlab := arena.NewSlab[trie.Node[trie.BrowserPathData]](256, false)
	browser := trie.NewBrowserTrie(a, browserSlab)

	nodes, err := decodeNodeTable(v, browser.Trie, strTable)
	if err != nil {
		return nil, err
	}

	for _, node := range nodes {
		data, err := decodeBrowserPayload(v, globalNodes)
		if err != nil {
			return nil, err
		}
		node.Data = data
	}

	if err := decodeMarksTable(v, nodes); err != nil {
		return nil, err
	}

	var sampleCount uint64
	v.varint(&sampleCount)
	if v.err != nil {
		return nil, v.err
	}

	return &Snapshot{Header: h, Browser: browser, SampleCount: sampleCount}, nil
}
