package state

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/btdu/pkg/arena"
	"github.com/elee1766/btdu/pkg/classifier"
	"github.com/elee1766/btdu/pkg/trie"
	"github.com/elee1766/btdu/pkg/wire"
)

func newTestShared() *classifier.Shared {
	a := arena.New(4096)
	browserSlab := arena.NewSlab[trie.Node[trie.BrowserPathData]](64, true)
	browser := trie.NewBrowserTrie(a, browserSlab)
	globalSlab := arena.NewSlab[trie.GlobalPath](64, false)
	globalTable := trie.NewGlobalPathTable(globalSlab)
	return classifier.NewShared(browser, globalTable, func() *trie.SubPathTrie {
		subSlab := arena.NewSlab[trie.Node[struct{}]](64, true)
		return trie.NewSubPathTrie(a, subSlab)
	})
}

func TestSessionShouldStopOnMaxSamples(t *testing.T) {
	shared := newTestShared()
	sess := NewSession("/mnt", 1000, shared)
	sess.Stop.MaxSamples = 2
	assert.False(t, sess.ShouldStop())
	shared.SampleCount = 2
	assert.True(t, sess.ShouldStop())
}

func TestSessionShouldStopOnMaxTime(t *testing.T) {
	shared := newTestShared()
	sess := NewSession("/mnt", 1000, shared)
	sess.StartedAt = time.Now().Add(-time.Hour)
	sess.Stop.MaxTime = time.Minute
	assert.True(t, sess.ShouldStop())
}

func TestSessionShouldStopOnQuitOrFatal(t *testing.T) {
	shared := newTestShared()
	sess := NewSession("/mnt", 1000, shared)
	assert.False(t, sess.ShouldStop())
	sess.Quitting = true
	assert.True(t, sess.ShouldStop())

	sess2 := NewSession("/mnt", 1000, shared)
	sess2.FatalErr = errors.New("boom")
	assert.True(t, sess2.ShouldStop())
}

func TestSessionResolution(t *testing.T) {
	shared := newTestShared()
	sess := NewSession("/mnt", 1000, shared)
	assert.Equal(t, uint64(1000), sess.Resolution())
	shared.SampleCount = 10
	assert.Equal(t, uint64(100), sess.Resolution())
}

func TestWorkerProcDrainFeedsClassifier(t *testing.T) {
	shared := newTestShared()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	wp := &WorkerProc{stdout: r, Classifier: classifier.NewWorker(shared)}

	_, err = w.Write(wire.Encode(&wire.Start{TotalSize: 500}))
	require.NoError(t, err)
	_, err = w.Write(wire.Encode(&wire.ResultStart{Logical: -2}))
	require.NoError(t, err)
	_, err = w.Write(wire.Encode(&wire.ResultEnd{DurationHnsecs: 10}))
	require.NoError(t, err)

	n, err := wp.Drain()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, uint64(1), shared.SampleCount)
}

func TestWorkerProcDrainPartialFrameWaitsForMore(t *testing.T) {
	shared := newTestShared()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	wp := &WorkerProc{stdout: r, Classifier: classifier.NewWorker(shared)}

	encoded := wire.Encode(&wire.Start{TotalSize: 500})
	_, err = w.Write(encoded[:2])
	require.NoError(t, err)

	n, err := wp.Drain()
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = w.Write(encoded[2:])
	require.NoError(t, err)
	n, err = wp.Drain()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
