package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/trie"
)

func newTestBrowserTrie() *trie.BrowserTrie {
	a := arena.New(4096)
	slab := arena.NewSlab[trie.Node[trie.BrowserPathData]](64, true)
	return trie.NewBrowserTrie(a, slab)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		FormatVersion: FormatVersion,
		Flags:         FlagExpert | FlagPhysical,
		FSID:          uuid.New(),
		TotalSize:     1 << 40,
		FSPath:        "/mnt/data",
	}
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("NOTBTDU!")
	_, err := ReadHeader(&buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestExportImportRoundTripPreservesCountersAndSeenAs(t *testing.T) {
	browser := newTestBrowserTrie()

	five, err := browser.AppendPath(browser.Root(), "@home/five.bin")
	require.NoError(t, err)
	trie.AddSample(trie.Represented, five, 10*time.Millisecond, sampling.Offset{Logical: 111, DevID: 1, Physical: 222})
	trie.AddSample(trie.Shared, five, 10*time.Millisecond)
	trie.AddExclusive(five, 5*time.Millisecond)
	trie.AddDistributedSample(five, 0.5, 20*time.Millisecond)

	gSlab := arena.NewSlab[trie.GlobalPath](8, false)
	gTable := trie.NewGlobalPathTable(gSlab)
	subSlab := arena.NewSlab[trie.Node[struct{}]](8, true)
	subTrie := trie.NewSubPathTrie(arena.New(1024), subSlab)
	snapA, err := subTrie.AppendPath(subTrie.Root(), "@home")
	require.NoError(t, err)
	snapB, err := subTrie.AppendPath(subTrie.Root(), "@home-snap")
	require.NoError(t, err)
	gpA := gTable.Append(nil, snapA)
	gpB := gTable.Append(nil, snapB)
	trie.AddSeenAs(five, gpA)
	trie.AddSeenAs(five, gpB)
	trie.AddSeenAs(five, gpB)

	other, err := browser.AppendPath(browser.Root(), trie.Special("UNALLOCATED"))
	require.NoError(t, err)
	trie.AddSample(trie.Represented, other, time.Millisecond)

	h := Header{
		FormatVersion: FormatVersion,
		Flags:         FlagExpert,
		FSID:          uuid.New(),
		TotalSize:     5000,
		FSPath:        "/mnt/data",
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, h, browser, 3))

	snap, err := Import(&buf)
	require.NoError(t, err)

	assert.Equal(t, h, snap.Header)
	assert.Equal(t, uint64(3), snap.SampleCount)

	got, err := snap.Browser.AppendPath(snap.Browser.Root(), "@home/five.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Data.Counters[trie.Represented].Samples)
	assert.Equal(t, 10*time.Millisecond, got.Data.Counters[trie.Represented].Duration)
	assert.Equal(t, uint64(1), got.Data.Counters[trie.Shared].Samples)
	assert.Equal(t, uint64(1), got.Data.Counters[trie.Exclusive].Samples)
	assert.Equal(t, 0.5, got.Data.DistributedSamples)
	assert.Equal(t, 10*time.Millisecond, got.Data.DistributedDuration)
	require.Len(t, got.Data.Counters[trie.Represented].Offsets.Items(), 1)
	assert.Equal(t, sampling.Offset{Logical: 111, DevID: 1, Physical: 222}, got.Data.Counters[trie.Represented].Offsets.Items()[0])

	totalSeenAs := 0
	for _, count := range got.Data.SeenAs {
		totalSeenAs += count
	}
	assert.Equal(t, 3, totalSeenAs)
	assert.Len(t, got.Data.SeenAs, 2)

	gotOther, err := snap.Browser.AppendPath(snap.Browser.Root(), trie.Special("UNALLOCATED"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gotOther.Data.Counters[trie.Represented].Samples)
}
