// Package btbatch slices ordered row groups into network-ready batches
// bounded by item count and cumulative byte size.
package btbatch

// Limits bound one batch. A zero or negative limit disables that axis.
type Limits struct {
	MaxItems int
	MaxBytes int
}

// Partition packs the groups' items into batches, in order, such that no
// batch exceeds either limit — except that an item whose size alone
// exceeds MaxBytes ships alone in its own batch, so an oversized item can
// never stall the pipeline. Items keep their relative order within a
// group, and when a group must be split across batches its remainder
// resumes at the start of the next batch ahead of any other group.
//
// size reports the byte cost of one item and is supplied by the caller
// because serialization happens upstream.
func Partition[T any](groups [][]T, size func(T) int, limits Limits) [][]T {
	var batches [][]T
	var current []T
	currentBytes := 0
	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
	}
	for _, group := range groups {
		for _, item := range group {
			n := size(item)
			if !fits(current, currentBytes, n, limits) {
				flush()
			}
			// after a flush the item is force-added even when it alone
			// exceeds the byte limit
			current = append(current, item)
			currentBytes += n
			if limits.MaxBytes > 0 && currentBytes > limits.MaxBytes {
				flush()
			}
		}
	}
	flush()
	return batches
}

func fits[T any](current []T, currentBytes, n int, limits Limits) bool {
	if limits.MaxItems > 0 && len(current)+1 > limits.MaxItems {
		return false
	}
	if limits.MaxBytes > 0 && currentBytes+n > limits.MaxBytes {
		return false
	}
	return true
}
