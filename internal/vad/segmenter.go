package vad

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/vapviz/vap-server/internal/series"
)

// DefaultThreshold is the activity level at or above which a frame counts as speech.
const DefaultThreshold = 0.5

// Segment is a run of active frames for one speaker. End is exclusive, so a
// single active frame at index i yields {Start: i, End: i+1}.
type Segment struct {
	Speaker series.Speaker `json:"speaker"`
	Start   int            `json:"start"`
	End     int            `json:"end"`
}

// Len returns the number of frames in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// Segmenter turns per-frame voice activity into segments.
type Segmenter struct {
	threshold float64
}

// NewSegmenter creates a segmenter with the given activity threshold.
func NewSegmenter(threshold float64) (*Segmenter, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be in (0, 1], got %f", threshold)
	}
	return &Segmenter{threshold: threshold}, nil
}

// Threshold returns the activity threshold.
func (s *Segmenter) Threshold() float64 {
	return s.threshold
}

// Channel scans one speaker's activity and returns its segments in frame order.
func (s *Segmenter) Channel(speaker series.Speaker, activity []float64) []Segment {
	segments := make([]Segment, 0)
	start := -1

	for i, v := range activity {
		active := v >= s.threshold
		switch {
		case active && start < 0:
			start = i
		case !active && start >= 0:
			segments = append(segments, Segment{Speaker: speaker, Start: start, End: i})
			start = -1
		}
	}

	// Close a segment still open at the last frame.
	if start >= 0 {
		segments = append(segments, Segment{Speaker: speaker, Start: start, End: len(activity)})
	}

	return segments
}

// Segments returns the segments of both speakers ordered by start frame, with
// speaker A first when two segments start on the same frame. Overlapping
// speech is kept as is.
func (s *Segmenter) Segments(vad [2][]float64) ([]Segment, error) {
	if len(vad[0]) != len(vad[1]) {
		return nil, fmt.Errorf("vad channels differ in length: %d and %d", len(vad[0]), len(vad[1]))
	}

	segments := append(s.Channel(series.SpeakerA, vad[0]), s.Channel(series.SpeakerB, vad[1])...)
	slices.SortStableFunc(segments, func(a, b Segment) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Speaker, b.Speaker)
	})
	return segments, nil
}

// BySpeaker splits segments into one list per speaker, preserving order.
func BySpeaker(segments []Segment) [2][]Segment {
	out := [2][]Segment{make([]Segment, 0), make([]Segment, 0)}
	for _, seg := range segments {
		out[seg.Speaker] = append(out[seg.Speaker], seg)
	}
	return out
}
