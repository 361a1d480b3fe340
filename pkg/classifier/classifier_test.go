package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/trie"
	"github.com/elee1766/btdu/pkg/wire"
)

func newTestShared() *Shared {
	a := arena.New(4096)
	browserSlab := arena.NewSlab[trie.Node[trie.BrowserPathData]](64, true)
	browser := trie.NewBrowserTrie(a, browserSlab)
	globalSlab := arena.NewSlab[trie.GlobalPath](64, false)
	globalTable := trie.NewGlobalPathTable(globalSlab)
	return NewShared(browser, globalTable, func() *trie.SubPathTrie {
		subSlab := arena.NewSlab[trie.Node[struct{}]](64, true)
		return trie.NewSubPathTrie(a, subSlab)
	})
}

func dataChunkFlags() uint64 {
	return 1 // BlockGroupData
}

func TestClassifySinglePathAccruesAllThreeCounters(t *testing.T) {
	shared := newTestShared()
	shared.Expert = true
	w := NewWorker(shared)

	require.NoError(t, w.Handle(&wire.Start{TotalSize: 1000}))
	require.NoError(t, w.Handle(&wire.NewRoot{RootID: 256, ParentRootID: TopLevelRootID, Name: "@home", Readonly: false, OTimeUnix: 100}))

	require.NoError(t, w.Handle(&wire.ResultStart{ChunkFlags: dataChunkFlags(), Logical: 10}))
	require.NoError(t, w.Handle(&wire.ResultInodeStart{RootID: 256}))
	require.NoError(t, w.Handle(&wire.Result{Path: "a/b.txt"}))
	require.NoError(t, w.Handle(&wire.ResultInodeEnd{}))
	require.NoError(t, w.Handle(&wire.ResultEnd{DurationHnsecs: 100}))

	node, err := shared.Browser.AppendPath(shared.Browser.Root(), trie.Special("DATA")+"/"+trie.Special("SINGLE")+"/@home/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Represented].Samples)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Shared].Samples)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Exclusive].Samples)
	assert.Equal(t, 1, len(node.Data.SeenAs))
}

func TestClassifyNoPathsGoesToNoInode(t *testing.T) {
	shared := newTestShared()
	w := NewWorker(shared)

	require.NoError(t, w.Handle(&wire.Start{TotalSize: 1000}))
	require.NoError(t, w.Handle(&wire.ResultStart{ChunkFlags: 1 << 2, Logical: 10})) // METADATA, no inode expected
	require.NoError(t, w.Handle(&wire.ResultEnd{DurationHnsecs: 50}))

	node, err := shared.Browser.AppendPath(shared.Browser.Root(), trie.Special("METADATA")+"/"+trie.Special("SINGLE")+"/"+trie.Special("NO_INODE"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Represented].Samples)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Exclusive].Samples)
}

func TestClassifyHoleGoesToUnallocated(t *testing.T) {
	shared := newTestShared()
	w := NewWorker(shared)

	require.NoError(t, w.Handle(&wire.Start{TotalSize: 1000}))
	require.NoError(t, w.Handle(&wire.ResultStart{Logical: -2})) // HoleAddr
	require.NoError(t, w.Handle(&wire.ResultEnd{DurationHnsecs: 50}))

	node, err := shared.Browser.AppendName(shared.Browser.Root(), trie.Special("UNALLOCATED"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), node.Data.Counters[trie.Represented].Samples)
}

func TestCompareCandidatesDeterministicTotalOrder(t *testing.T) {
	shared := newTestShared()
	w := NewWorker(shared)
	require.NoError(t, w.Handle(&wire.Start{TotalSize: 1000}))
	require.NoError(t, w.Handle(&wire.NewRoot{RootID: 10, ParentRootID: TopLevelRootID, Name: "@a", Readonly: false, OTimeUnix: 200}))
	require.NoError(t, w.Handle(&wire.NewRoot{RootID: 20, ParentRootID: TopLevelRootID, Name: "@b", Readonly: true, OTimeUnix: 300}))

	sub10 := shared.SubTries[10]
	sub20 := shared.SubTries[20]
	n10, _ := sub10.AppendPath(sub10.Root(), "x/y")
	n20, _ := sub20.AppendPath(sub20.Root(), "z")

	c1 := candidate{gp: shared.GlobalTable.Append(shared.Roots[10], n10), rootID: 10}
	c2 := candidate{gp: shared.GlobalTable.Append(shared.Roots[20], n20), rootID: 20}

	// c1 is read-write, c2 is read-only: c1 must win in either argument
	// order (antisymmetry), and a candidate compares equal to itself
	// (reflexivity).
	assert.Negative(t, compareCandidates(c1, c2, shared.RootMetas, PolicyFlags{}))
	assert.Positive(t, compareCandidates(c2, c1, shared.RootMetas, PolicyFlags{}))
	assert.Zero(t, compareCandidates(c1, c1, shared.RootMetas, PolicyFlags{}))

	best := selectRepresentative([]candidate{c2, c1}, shared.RootMetas, PolicyFlags{})
	assert.Equal(t, c1.gp, best.gp)
}

func TestCompareCandidatesReadOnlyPolicyReverses(t *testing.T) {
	shared := newTestShared()
	w := NewWorker(shared)
	require.NoError(t, w.Handle(&wire.Start{TotalSize: 1000}))
	require.NoError(t, w.Handle(&wire.NewRoot{RootID: 10, ParentRootID: TopLevelRootID, Name: "@a", Readonly: false, OTimeUnix: 200}))
	require.NoError(t, w.Handle(&wire.NewRoot{RootID: 20, ParentRootID: TopLevelRootID, Name: "@b", Readonly: true, OTimeUnix: 300}))

	sub10 := shared.SubTries[10]
	sub20 := shared.SubTries[20]
	n10, _ := sub10.AppendPath(sub10.Root(), "x")
	n20, _ := sub20.AppendPath(sub20.Root(), "y")
	c1 := candidate{gp: shared.GlobalTable.Append(shared.Roots[10], n10), rootID: 10}
	c2 := candidate{gp: shared.GlobalTable.Append(shared.Roots[20], n20), rootID: 20}

	assert.Positive(t, compareCandidates(c1, c2, shared.RootMetas, PolicyFlags{PreferReadOnly: true}))
}

func TestNewRootUnknownParentErrors(t *testing.T) {
	shared := newTestShared()
	w := NewWorker(shared)
	require.NoError(t, w.Handle(&wire.Start{TotalSize: 1000}))
	err := w.Handle(&wire.NewRoot{RootID: 99, ParentRootID: 12345, Name: "@orphan"})
	assert.Error(t, err)
}

func TestFatalErrorSurfacesAsErrFatal(t *testing.T) {
	shared := newTestShared()
	w := NewWorker(shared)
	err := w.Handle(&wire.FatalError{Msg: "device gone"})
	require.Error(t, err)
	var ef *ErrFatal
	assert.ErrorAs(t, err, &ef)
}
