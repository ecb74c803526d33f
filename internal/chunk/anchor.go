package chunk

// Segment is one timed piece of a transcript, in document order.
type Segment struct {
	Text     string
	StartSec int
	EndSec   int
}

// TimeRange is the transcript time window a span covers. Zero value with
// OK=false means the span could not be anchored (no segments, or the span
// lies past the segment word count).
type TimeRange struct {
	StartSec int
	EndSec   int
	OK       bool
}

// Anchor maps each span's word range onto segment timestamps. Spans must have
// been produced from the concatenation of the segment texts in order: the
// word offsets of a span select the segments it overlaps, and the range runs
// from the first overlapped segment's start to the last one's end.
func Anchor(spans []Span, segments []Segment) []TimeRange {
	ranges := make([]TimeRange, len(spans))
	if len(segments) == 0 {
		return ranges
	}

	// prefix[i] is the number of words in segments before segment i.
	prefix := make([]int, len(segments)+1)
	for i, seg := range segments {
		prefix[i+1] = prefix[i] + CountTokens(seg.Text)
	}
	total := prefix[len(segments)]

	for i, sp := range spans {
		if sp.WordStart >= total || sp.WordEnd <= sp.WordStart {
			continue
		}
		first := segmentAt(prefix, sp.WordStart)
		last := segmentAt(prefix, min(sp.WordEnd-1, total-1))
		ranges[i] = TimeRange{
			StartSec: segments[first].StartSec,
			EndSec:   segments[last].EndSec,
			OK:       true,
		}
	}
	return ranges
}

// segmentAt returns the index of the segment containing word offset w.
func segmentAt(prefix []int, w int) int {
	lo, hi := 0, len(prefix)-2
	for lo < hi {
		mid := (lo + hi) / 2
		if prefix[mid+1] <= w {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
