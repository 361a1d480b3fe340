package worker

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elee1766/btdu/pkg/sampling"
	"github.com/elee1766/btdu/pkg/wire"
)

type fakeCapability struct {
	logicalIno func(logical uint64, ignoreOffset bool) ([]sampling.InodeRef, error)
	inoPaths   func(treeID, objectID uint64) ([]string, error)
	rootInfo   func(rootID uint64) (*sampling.RootInfo, error)
}

func (f *fakeCapability) LogicalIno(logical uint64, ignoreOffset bool) ([]sampling.InodeRef, error) {
	return f.logicalIno(logical, ignoreOffset)
}

func (f *fakeCapability) InoPaths(treeID, objectID uint64) ([]string, error) {
	return f.inoPaths(treeID, objectID)
}

func (f *fakeCapability) RootInfo(rootID uint64) (*sampling.RootInfo, error) {
	return f.rootInfo(rootID)
}

type fakeSpace struct {
	total int64
	zone  sampling.ChunkEntry
	off   sampling.Offset
}

func (s *fakeSpace) Total() int64 { return s.total }
func (s *fakeSpace) Resolve(u int64) (sampling.ChunkEntry, sampling.Offset) {
	return s.zone, s.off
}

func decodeAll(t *testing.T, buf []byte) []any {
	t.Helper()
	var p wire.Parser
	p.Feed(buf)
	var out []any
	for {
		d, needed, err := p.Next()
		require.NoError(t, err)
		if needed > 0 {
			break
		}
		out = append(out, d.Message)
	}
	return out
}

func TestRunOnceSinglePathEmitsFullFrameSequence(t *testing.T) {
	space := &fakeSpace{
		total: 100,
		zone:  sampling.ChunkEntry{Kind: sampling.ZoneChunk, Flags: sampling.BlockGroupData},
		off:   sampling.Offset{Logical: 42, DevID: 1, Physical: sampling.NoPhysicalAddr},
	}
	sampler := sampling.NewSampler(space, 1)
	cap := &fakeCapability{
		logicalIno: func(logical uint64, ignoreOffset bool) ([]sampling.InodeRef, error) {
			require.False(t, ignoreOffset)
			return []sampling.InodeRef{{Inum: 7, RootID: 256}}, nil
		},
		inoPaths: func(treeID, objectID uint64) ([]string, error) {
			return []string{"a/b.txt"}, nil
		},
		rootInfo: func(rootID uint64) (*sampling.RootInfo, error) {
			return &sampling.RootInfo{RootID: 256, ParentRootID: TopLevelRootID, Name: "@home", Readonly: false}, nil
		},
	}

	var buf bytes.Buffer
	w := New(cap, sampler, &buf, Config{TotalSize: 100})
	w.now = func() time.Time { return time.Unix(0, 0) }

	require.NoError(t, w.Start())
	require.NoError(t, w.RunOnce())

	msgs := decodeAll(t, buf.Bytes())
	require.Len(t, msgs, 7)
	assert.IsType(t, &wire.Start{}, msgs[0])
	assert.IsType(t, &wire.NewRoot{}, msgs[1])
	assert.IsType(t, &wire.ResultStart{}, msgs[2])
	assert.IsType(t, &wire.ResultInodeStart{}, msgs[3])
	assert.IsType(t, &wire.Result{}, msgs[4])
	assert.IsType(t, &wire.ResultInodeEnd{}, msgs[5])
	assert.IsType(t, &wire.ResultEnd{}, msgs[6])
	assert.Equal(t, "@home", msgs[1].(*wire.NewRoot).Name)
	assert.Equal(t, "a/b.txt", msgs[4].(*wire.Result).Path)
}

func TestRunOnceRetriesWithIgnoreOffsetWhenEmpty(t *testing.T) {
	space := &fakeSpace{
		total: 100,
		zone:  sampling.ChunkEntry{Kind: sampling.ZoneChunk, Flags: sampling.BlockGroupData},
		off:   sampling.Offset{Logical: 10, DevID: 1, Physical: sampling.NoPhysicalAddr},
	}
	sampler := sampling.NewSampler(space, 1)
	calls := 0
	cap := &fakeCapability{
		logicalIno: func(logical uint64, ignoreOffset bool) ([]sampling.InodeRef, error) {
			calls++
			if !ignoreOffset {
				return nil, nil
			}
			return []sampling.InodeRef{{Inum: 1, RootID: TopLevelRootID}}, nil
		},
		inoPaths: func(treeID, objectID uint64) ([]string, error) {
			return []string{"retried.txt"}, nil
		},
		rootInfo: func(rootID uint64) (*sampling.RootInfo, error) {
			t.Fatalf("RootInfo should not be called for the already-known top-level root")
			return nil, nil
		},
	}

	var buf bytes.Buffer
	w := New(cap, sampler, &buf, Config{TotalSize: 100})
	w.now = func() time.Time { return time.Unix(0, 0) }
	require.NoError(t, w.Start())
	require.NoError(t, w.RunOnce())

	assert.Equal(t, 2, calls)
	msgs := decodeAll(t, buf.Bytes())
	var sawIgnoring bool
	for _, m := range msgs {
		if _, ok := m.(*wire.ResultIgnoringOffset); ok {
			sawIgnoring = true
		}
	}
	assert.True(t, sawIgnoring)
}

func TestRunOnceMetadataChunkSkipsInodeResolution(t *testing.T) {
	space := &fakeSpace{
		total: 100,
		zone:  sampling.ChunkEntry{Kind: sampling.ZoneChunk, Flags: sampling.BlockGroupMetadata},
		off:   sampling.Offset{Logical: 10, DevID: 1, Physical: sampling.NoPhysicalAddr},
	}
	sampler := sampling.NewSampler(space, 1)
	cap := &fakeCapability{
		logicalIno: func(logical uint64, ignoreOffset bool) ([]sampling.InodeRef, error) {
			t.Fatalf("LogicalIno should not be called for a non-DATA chunk")
			return nil, nil
		},
		inoPaths: func(treeID, objectID uint64) ([]string, error) { return nil, nil },
		rootInfo: func(rootID uint64) (*sampling.RootInfo, error) { return nil, nil },
	}
	var buf bytes.Buffer
	w := New(cap, sampler, &buf, Config{TotalSize: 100})
	w.now = func() time.Time { return time.Unix(0, 0) }
	require.NoError(t, w.Start())
	require.NoError(t, w.RunOnce())

	msgs := decodeAll(t, buf.Bytes())
	require.Len(t, msgs, 3)
	assert.IsType(t, &wire.ResultEnd{}, msgs[2])
}
