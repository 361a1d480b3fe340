package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocBytesDistinct(t *testing.T) {
	a := New(64)
	b1 := a.AllocBytes(16)
	b2 := a.AllocBytes(16)
	b1[0] = 1
	b2[0] = 2
	assert.Equal(t, byte(1), b1[0])
	assert.Equal(t, byte(2), b2[0])
}

func TestArenaGrowsAcrossBlocks(t *testing.T) {
	a := New(8)
	total := 0
	for i := 0; i < 100; i++ {
		a.AllocBytes(3)
		total += 3
	}
	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.Blocks, 1)
	assert.GreaterOrEqual(t, stats.BytesCapacity, total)
}

func TestArenaAllocString(t *testing.T) {
	a := New(64)
	s := a.AllocString("hello")
	assert.Equal(t, "hello", s)
}

func TestArenaFailHandlerInvoked(t *testing.T) {
	a := New(-1)
	called := false
	a.SetFailHandler(func(reason string) { called = true; panic("stop") })
	defer func() {
		recover()
		assert.True(t, called)
	}()
	// negative size triggers the fail handler path directly.
	a.AllocBytes(-1)
}

func TestSlabAllocDistinctPointers(t *testing.T) {
	s := NewSlab[int](4, false)
	p1 := s.Alloc()
	p2 := s.Alloc()
	*p1 = 10
	*p2 = 20
	assert.NotSame(t, p1, p2)
	assert.Equal(t, 10, *p1)
	assert.Equal(t, 20, *p2)
}

func TestSlabIndexedOrdinalRoundTrip(t *testing.T) {
	s := NewSlab[int](4, true)
	ptrs := make([]*int, 0, 10)
	for i := 0; i < 10; i++ {
		p := s.Alloc()
		*p = i
		ptrs = append(ptrs, p)
	}
	require.Equal(t, 10, s.Len())
	for i, p := range ptrs {
		ord := s.OrdinalOf(p)
		require.Equal(t, i, ord)
		assert.Same(t, p, s.AtOrdinal(ord))
	}
}

func TestSlabSnapshotIterDoesNotSeeLaterAppends(t *testing.T) {
	s := NewSlab[int](4, true)
	for i := 0; i < 3; i++ {
		p := s.Alloc()
		*p = i
	}
	it := s.SnapshotIter()
	p := s.Alloc()
	*p = 99
	count := 0
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 3, count)
}

func TestSlabOpenIterSeesLaterAppends(t *testing.T) {
	s := NewSlab[int](4, true)
	p := s.Alloc()
	*p = 1
	it := s.OpenIter()

	v, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, 1, *v)

	_, ok = it.Next()
	assert.False(t, ok)

	p2 := s.Alloc()
	*p2 = 2
	v, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, 2, *v)
}
