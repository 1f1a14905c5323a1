// Package buffer computes what to fetch next and what to evict. Both
// planners are pure functions over buffered ranges and the playhead, so
// repeated calls with unchanged inputs return unchanged results and never
// cause duplicate work.
package buffer

import "hls-playback/internal/playlist"

// Range is a half-open span of buffered media time in seconds.
type Range struct {
	Start float64
	End   float64
}

// rangeTolerance absorbs the small edge rounding media sinks apply to
// buffered ranges.
const rangeTolerance = 0.05

// covered reports whether [start, end) lies inside a single buffered range.
func covered(buffered []Range, start, end float64) bool {
	for _, r := range buffered {
		if r.Start <= start+rangeTolerance && r.End >= end-rangeTolerance {
			return true
		}
	}
	return false
}

// SegmentsToLoad walks the segment timeline and returns the segments that
// overlap the forward-buffer window [position, position+target) and are not
// already buffered, in playback order.
func SegmentsToLoad(buffered []Range, position, target float64, segs []playlist.Segment) []playlist.Segment {
	if target <= 0 || len(segs) == 0 {
		return nil
	}
	horizon := position + target

	var out []playlist.Segment
	var cursor float64
	for _, seg := range segs {
		start := cursor
		end := cursor + seg.Duration
		cursor = end

		if end <= position+rangeTolerance {
			continue // wholly behind the playhead
		}
		if start >= horizon {
			break
		}
		if covered(buffered, start, end) {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// BackBufferPolicy controls how much played media is retained behind the
// playhead before eviction.
type BackBufferPolicy struct {
	// KeepBehind is the retained span in seconds; <= 0 disables eviction.
	KeepBehind float64
}

// FlushPoint returns the latest boundary behind the playhead up to which
// buffered media can safely be evicted. The returned point is always
// strictly before position; ok is false when there is nothing to evict.
func FlushPoint(buffered []Range, position float64, policy BackBufferPolicy) (float64, bool) {
	if policy.KeepBehind <= 0 {
		return 0, false
	}
	point := position - policy.KeepBehind
	if point <= 0 {
		return 0, false
	}
	for _, r := range buffered {
		if r.Start < point {
			return point, true
		}
	}
	return 0, false
}
