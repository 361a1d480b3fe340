package arena

// SlabElems is the number of elements packed into each slab when the
// caller doesn't need to tune it. Chosen so a slab of small trie-node
// structs lands close to arena.DefaultBlockSize.
const SlabElems = 4096

// Slab is a fixed-size-slot allocator for many same-type objects. It
// never frees: Alloc hands out a pointer into one of its slabs and that
// pointer stays valid until the slab is discarded with the rest of the
// process's memory.
//
// When indexed is true, Slab also maintains an ordinal<->pointer
// mapping: OrdinalOf is O(#slabs) (linear scan of slab base pointers)
// and AtOrdinal is O(1). The iterators (SnapshotIter, OpenIter) use
// AtOrdinal and so need an indexed Slab. The export codec does not use
// these ordinals; it assigns its own table indices.
type Slab[T any] struct {
	perSlab int
	indexed bool
	slabs   [][]T
	cur     []T
	onFail  FailHandler
}

// NewSlab creates a Slab with perSlab elements per backing slab. A
// non-positive perSlab selects SlabElems. If indexed is true, ordinal
// lookups are available.
func NewSlab[T any](perSlab int, indexed bool) *Slab[T] {
	if perSlab <= 0 {
		perSlab = SlabElems
	}
	return &Slab[T]{
		perSlab: perSlab,
		indexed: indexed,
		onFail:  defaultFailHandler,
	}
}

// SetFailHandler installs the out-of-memory callback, mirroring Arena.
func (s *Slab[T]) SetFailHandler(h FailHandler) {
	if h == nil {
		h = defaultFailHandler
	}
	s.onFail = h
}

// Alloc returns a pointer to a freshly zeroed T within the slab.
func (s *Slab[T]) Alloc() *T {
	if len(s.cur) == 0 {
		s.growSlab()
	}
	p := &s.cur[0]
	s.cur = s.cur[1:]
	return p
}

func (s *Slab[T]) growSlab() {
	defer func() {
		if r := recover(); r != nil {
			s.onFail("out of memory allocating slab")
		}
	}()
	block := make([]T, s.perSlab)
	s.slabs = append(s.slabs, block)
	s.cur = block
}

// Len returns the total number of elements allocated so far.
func (s *Slab[T]) Len() int {
	return s.lenFast()
}

func (s *Slab[T]) lenFast() int {
	n := 0
	for i, slab := range s.slabs {
		if i == len(s.slabs)-1 {
			n += len(slab) - len(s.cur)
		} else {
			n += len(slab)
		}
	}
	return n
}

// AtOrdinal returns a pointer to the element allocated at the given
// zero-based ordinal (allocation order). Panics if the Slab was not
// created with indexed=true or the ordinal is out of range.
func (s *Slab[T]) AtOrdinal(ord int) *T {
	if !s.indexed {
		panic("arena: AtOrdinal called on non-indexed Slab")
	}
	if ord < 0 {
		panic("arena: negative ordinal")
	}
	slabIdx := ord / s.perSlab
	offset := ord % s.perSlab
	if slabIdx >= len(s.slabs) ||
		(slabIdx == len(s.slabs)-1 && offset >= len(s.slabs[slabIdx])-len(s.cur)) {
		panic("arena: ordinal out of range")
	}
	return &s.slabs[slabIdx][offset]
}

// OrdinalOf returns the zero-based allocation ordinal of p, or -1 if p
// was not allocated from this Slab. O(#slabs).
func (s *Slab[T]) OrdinalOf(p *T) int {
	if !s.indexed {
		panic("arena: OrdinalOf called on non-indexed Slab")
	}
	for i, slab := range s.slabs {
		if len(slab) == 0 {
			continue
		}
		base := &slab[0]
		off := int(uintptrDiff(p, base))
		if off >= 0 && off < len(slab) {
			return i*s.perSlab + off
		}
	}
	return -1
}

// SnapshotIter returns an iterator over the elements allocated at the
// moment of the call: appends after this point are not visible.
func (s *Slab[T]) SnapshotIter() *Iter[T] {
	return &Iter[T]{slab: s, end: s.lenFast()}
}

// OpenIter returns an iterator whose end tracks the slab's current
// write pointer: elements appended after creation, but before the
// iterator catches up, become visible. Used by the classifier to drain
// a queue of pending sharing groups while workers keep appending.
func (s *Slab[T]) OpenIter() *Iter[T] {
	return &Iter[T]{slab: s, open: true}
}

// Iter walks a Slab's elements in allocation order.
type Iter[T any] struct {
	slab *Slab[T]
	pos  int
	end  int
	open bool
}

// Next returns the next element and true, or the zero value and false
// when the iterator is exhausted (for an open iterator, "exhausted"
// means "nothing new right now"; calling Next again later may succeed).
func (it *Iter[T]) Next() (*T, bool) {
	limit := it.end
	if it.open {
		limit = it.slab.lenFast()
	}
	if it.pos >= limit {
		return nil, false
	}
	p := it.slab.AtOrdinal(it.pos)
	it.pos++
	return p, true
}

// uintptrDiff computes the element-count offset of p from base,
// assuming both point within the same backing array. It uses ptrOffset's
// unsafe pointer arithmetic; the result is meaningful only when p lies in
// base's backing array, which is why OrdinalOf range-checks it per slab.
func uintptrDiff[T any](p, base *T) int64 {
	return ptrOffset(p, base)
}
