package prepare

import (
	"fmt"

	"github.com/vapviz/vap-server/internal/vad"
)

// Payload is the response consumed by the visualization client. It is built
// once per request and not modified afterwards.
type Payload struct {
	// VadList holds, per speaker, [start, end] pairs in seconds.
	VadList     [2][][2]float64 `json:"vad_list"`
	VadSegments []vad.Segment   `json:"vad_segments"`

	PNowA    []float64 `json:"p_now_a"`
	PNowB    []float64 `json:"p_now_b"`
	PFutureA []float64 `json:"p_future_a"`
	PFutureB []float64 `json:"p_future_b"`

	PBCA    []float64 `json:"p_bc_a,omitempty"`
	PBCB    []float64 `json:"p_bc_b,omitempty"`
	Entropy []float64 `json:"H,omitempty"`

	TopK  [][]int     `json:"topk"`
	TopKP [][]float64 `json:"topk_p"`
	K     int         `json:"k"`

	// Frames is the length of the retained frame axis.
	Frames int `json:"frames"`
}

// Parts are the independently produced outputs merged by the Assembler.
type Parts struct {
	// Frames is the expected length of every per-frame channel.
	Frames int

	Segments []vad.Segment

	PNowA, PNowB       []float64
	PFutureA, PFutureB []float64

	// Optional channels; nil when the artifact does not carry them.
	PBC     [2][]float64
	Entropy []float64
	TopK    *TopK
}

// Assembler merges Parts into a Payload.
type Assembler struct {
	frameHz float64
}

// NewAssembler creates an assembler expressing segments in seconds at frameHz.
func NewAssembler(frameHz float64) (*Assembler, error) {
	if frameHz <= 0 {
		return nil, fmt.Errorf("frame rate must be positive, got %f", frameHz)
	}
	return &Assembler{frameHz: frameHz}, nil
}

// Assemble checks that every per-frame channel has parts.Frames entries and
// builds the payload. A mismatch is returned as an AlignmentError.
func (a *Assembler) Assemble(parts Parts) (*Payload, error) {
	channels := []struct {
		name     string
		length   int
		optional bool
		present  bool
	}{
		{name: "p_now_a", length: len(parts.PNowA)},
		{name: "p_now_b", length: len(parts.PNowB)},
		{name: "p_future_a", length: len(parts.PFutureA)},
		{name: "p_future_b", length: len(parts.PFutureB)},
		{name: "p_bc_a", length: len(parts.PBC[0]), optional: true, present: parts.PBC[0] != nil},
		{name: "p_bc_b", length: len(parts.PBC[1]), optional: true, present: parts.PBC[1] != nil},
		{name: "H", length: len(parts.Entropy), optional: true, present: parts.Entropy != nil},
		{name: "topk", length: topKLen(parts.TopK), optional: true, present: parts.TopK != nil},
	}
	for _, c := range channels {
		if c.optional && !c.present {
			continue
		}
		if c.length != parts.Frames {
			return nil, &AlignmentError{Channel: c.name, Want: parts.Frames, Got: c.length}
		}
	}

	p := &Payload{
		VadList:     a.vadList(parts.Segments),
		VadSegments: parts.Segments,
		PNowA:       parts.PNowA,
		PNowB:       parts.PNowB,
		PFutureA:    parts.PFutureA,
		PFutureB:    parts.PFutureB,
		PBCA:        parts.PBC[0],
		PBCB:        parts.PBC[1],
		Entropy:     parts.Entropy,
		TopK:        [][]int{},
		TopKP:       [][]float64{},
		Frames:      parts.Frames,
	}
	if p.VadSegments == nil {
		p.VadSegments = []vad.Segment{}
	}
	if parts.TopK != nil {
		p.TopK = parts.TopK.Indices()
		p.TopKP = parts.TopK.Scores()
		p.K = parts.TopK.K
	}
	return p, nil
}

func (a *Assembler) vadList(segments []vad.Segment) [2][][2]float64 {
	out := [2][][2]float64{{}, {}}
	for speaker, segs := range vad.BySpeaker(segments) {
		for _, seg := range segs {
			out[speaker] = append(out[speaker], [2]float64{
				float64(seg.Start) / a.frameHz,
				float64(seg.End) / a.frameHz,
			})
		}
	}
	return out
}

func topKLen(t *TopK) int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}
