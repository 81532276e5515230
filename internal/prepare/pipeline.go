package prepare

import (
	"fmt"

	"github.com/vapviz/vap-server/internal/series"
	"github.com/vapviz/vap-server/internal/vad"
)

// Options configure a Pipeline.
type Options struct {
	// WindowSize is the smoothing window in frames; values below 2 disable smoothing.
	WindowSize     int
	FrameHz        float64
	VocabularySize int
	VADThreshold   float64
}

// Pipeline converts a FrameSeries into a Payload. It keeps no state between
// calls and may be shared by concurrent requests.
type Pipeline struct {
	window    int
	segmenter *vad.Segmenter
	extractor *TopKExtractor
	assembler *Assembler
}

// NewPipeline creates a pipeline from opts.
func NewPipeline(opts Options) (*Pipeline, error) {
	segmenter, err := vad.NewSegmenter(opts.VADThreshold)
	if err != nil {
		return nil, fmt.Errorf("vad segmenter: %w", err)
	}
	extractor, err := NewTopKExtractor(opts.VocabularySize)
	if err != nil {
		return nil, fmt.Errorf("top-k extractor: %w", err)
	}
	assembler, err := NewAssembler(opts.FrameHz)
	if err != nil {
		return nil, fmt.Errorf("assembler: %w", err)
	}
	return &Pipeline{
		window:    opts.WindowSize,
		segmenter: segmenter,
		extractor: extractor,
		assembler: assembler,
	}, nil
}

// Smoothing reports whether the pipeline downsamples the frame axis.
func (p *Pipeline) Smoothing() bool {
	return p.window >= 2
}

// RetainedFrames returns the payload frame count for an n-frame series.
func (p *Pipeline) RetainedFrames(n int) int {
	if !p.Smoothing() {
		return n
	}
	return SmoothedLen(n, p.window)
}

// Prepare builds the payload for s with at most k top-k categories per frame.
// Voice activity is segmented on the original frame axis; every other channel
// is reported on the retained axis.
func (p *Pipeline) Prepare(s *series.FrameSeries, k int) (*Payload, error) {
	segments, err := p.segmenter.Segments(s.VAD)
	if err != nil {
		return nil, &AlignmentError{Channel: "vad", Want: len(s.VAD[0]), Got: len(s.VAD[1])}
	}

	retained := s
	if p.Smoothing() {
		if retained, err = SmoothSeries(s, p.window); err != nil {
			return nil, err
		}
	}

	parts := Parts{
		Frames:   p.RetainedFrames(s.Len()),
		Segments: segments,
		PNowA:    RescaleAll(retained.PNow),
		PNowB:    RescaleComplement(retained.PNow),
		PFutureA: RescaleAll(retained.PFuture),
		PFutureB: RescaleComplement(retained.PFuture),
		PBC:      retained.PBC,
		Entropy:  retained.Entropy,
	}

	switch {
	case s.HasTopK():
		// Every stored row is validated, including the ones smoothing drops.
		parts.TopK, err = p.extractor.FromPrecomputed(s.TopK, s.TopKP, k)
		if err == nil && p.Smoothing() {
			parts.TopK.Entries = windowEntries(parts.TopK.Entries, p.window)
		}
	case retained.HasProbs():
		parts.TopK, err = p.extractor.FromScores(retained.Probs, k)
	default:
		if k < 1 {
			err = ErrInvalidK
		}
	}
	if err != nil {
		return nil, err
	}

	return p.assembler.Assemble(parts)
}

// windowEntries keeps the entry at the first frame of each window.
func windowEntries(entries []TopKEntry, w int) []TopKEntry {
	starts := WindowStarts(len(entries), w)
	out := make([]TopKEntry, len(starts))
	for i, j := range starts {
		out[i] = entries[j]
	}
	return out
}
