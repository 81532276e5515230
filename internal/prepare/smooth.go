package prepare

import (
	"errors"
	"fmt"

	"github.com/vapviz/vap-server/internal/series"
)

// ErrInvalidWindow is returned for smoothing windows smaller than two frames.
var ErrInvalidWindow = errors.New("smoothing window must be at least 2 frames")

// SmoothedLen returns the number of frames Smooth produces for n input frames.
// Windows hold w frames and advance by w-1, so consecutive windows share one
// frame. Frames that do not fill a whole window are dropped.
func SmoothedLen(n, w int) int {
	if w < 2 || n < w {
		return 0
	}
	return (n-w)/(w-1) + 1
}

// WindowStarts returns the first frame index of every smoothing window.
func WindowStarts(n, w int) []int {
	starts := make([]int, SmoothedLen(n, w))
	for i := range starts {
		starts[i] = i * (w - 1)
	}
	return starts
}

// Smooth averages x over windows of w frames with stride w-1.
func Smooth(x []float64, w int) ([]float64, error) {
	if w < 2 {
		return nil, ErrInvalidWindow
	}
	out := make([]float64, SmoothedLen(len(x), w))
	for i := range out {
		start := i * (w - 1)
		var sum float64
		for _, v := range x[start : start+w] {
			sum += v
		}
		out[i] = sum / float64(w)
	}
	return out, nil
}

// SmoothVectors smooths each category of per-frame vectors independently.
// All vectors must have the same width.
func SmoothVectors(x [][]float64, w int) ([][]float64, error) {
	if w < 2 {
		return nil, ErrInvalidWindow
	}
	out := make([][]float64, SmoothedLen(len(x), w))
	if len(out) == 0 {
		return out, nil
	}
	width := len(x[0])
	for i := range out {
		start := i * (w - 1)
		avg := make([]float64, width)
		for f := start; f < start+w; f++ {
			if len(x[f]) != width {
				return nil, &TopKShapeError{Frame: f, Reason: fmt.Sprintf("score vector has %d categories, want %d", len(x[f]), width)}
			}
			for c, v := range x[f] {
				avg[c] += v
			}
		}
		for c := range avg {
			avg[c] /= float64(w)
		}
		out[i] = avg
	}
	return out, nil
}

// pick returns rows[i] for every index in idx.
func pick[T any](rows [][]T, idx []int) [][]T {
	out := make([][]T, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

// SmoothSeries returns a new series on the smoothed frame axis. Numeric
// channels are averaged per channel; precomputed top-k rows cannot be averaged
// and are taken from the first frame of each window. s is not modified.
func SmoothSeries(s *series.FrameSeries, w int) (*series.FrameSeries, error) {
	if w < 2 {
		return nil, ErrInvalidWindow
	}
	smooth := func(x []float64) []float64 {
		if x == nil {
			return nil
		}
		out, _ := Smooth(x, w)
		return out
	}

	out := &series.FrameSeries{
		Schema:    s.Schema,
		PNow:      smooth(s.PNow),
		PFuture:   smooth(s.PFuture),
		Entropy:   smooth(s.Entropy),
		Malformed: s.Malformed,
	}
	for i := range s.VAD {
		out.VAD[i] = smooth(s.VAD[i])
		out.PBC[i] = smooth(s.PBC[i])
	}
	if s.HasTopK() {
		starts := WindowStarts(len(s.TopK), w)
		out.TopK = pick(s.TopK, starts)
		out.TopKP = pick(s.TopKP, WindowStarts(len(s.TopKP), w))
	}
	if s.HasProbs() {
		probs, err := SmoothVectors(s.Probs, w)
		if err != nil {
			return nil, err
		}
		out.Probs = probs
	}
	return out, nil
}
