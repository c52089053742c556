// Package rangealgebra collapses sorted integers into contiguous
// ranges and splits ranges by a maximum chunk size, per spec.md §4.2.
// Generalized from the teacher's chunk-boundary arithmetic in
// internal/chunk/chunk.go to arbitrary integer-set partitioning.
package rangealgebra

import (
	"fmt"
	"sort"

	"github.com/renderfarm/farmd/internal/scene"
)

// ContiguousRanges collapses a set of integers into maximal runs of
// consecutive values, in ascending order. Duplicates are ignored.
func ContiguousRanges(xs []int) []scene.FrameRange {
	if len(xs) == 0 {
		return nil
	}
	sorted := make([]int, len(xs))
	copy(sorted, xs)
	sort.Ints(sorted)

	var out []scene.FrameRange
	start := sorted[0]
	prev := sorted[0]
	for _, v := range sorted[1:] {
		if v == prev {
			continue // duplicate
		}
		if v == prev+1 {
			prev = v
			continue
		}
		out = append(out, scene.FrameRange{Start: start, End: prev})
		start, prev = v, v
	}
	out = append(out, scene.FrameRange{Start: start, End: prev})
	return out
}

// SplitByChunk splits each range into sub-ranges of at most n frames,
// preserving input order. n must be >= 1.
func SplitByChunk(ranges []scene.FrameRange, n int) ([]scene.FrameRange, error) {
	if n < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", n)
	}
	var out []scene.FrameRange
	for _, r := range ranges {
		a := r.Start
		for a <= r.End {
			b := a + n - 1
			if b > r.End {
				b = r.End
			}
			out = append(out, scene.FrameRange{Start: a, End: b})
			a += n
		}
	}
	return out, nil
}

// Missing computes {first..last} \ existing, as a sorted slice.
func Missing(first, last int, existing map[int]struct{}) []int {
	if last < first {
		return nil
	}
	out := make([]int, 0, last-first+1)
	for i := first; i <= last; i++ {
		if _, ok := existing[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}
