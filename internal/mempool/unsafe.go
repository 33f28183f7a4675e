package mempool

import "unsafe"

// uintptrDiff returns the signed byte distance from base to head, both
// pointers into the same backing array. Used by perCPUAllocator.Free to
// recover a cell's slab index without storing one alongside each cell.
func uintptrDiff(base, head *byte) int64 {
	return int64(uintptr(unsafe.Pointer(head))) - int64(uintptr(unsafe.Pointer(base)))
}
