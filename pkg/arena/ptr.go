package arena

import "unsafe"

// ptrOffset returns the element distance from base to p, assuming both
// point into the same contiguous array of T. Negative or out-of-range
// results indicate p does not lie within that array.
func ptrOffset[T any](p, base *T) int64 {
	var zero T
	size := int64(unsafe.Sizeof(zero))
	if size == 0 {
		return 0
	}
	diff := int64(uintptr(unsafe.Pointer(p)) - uintptr(unsafe.Pointer(base)))
	return diff / size
}
