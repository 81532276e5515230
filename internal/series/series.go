package series

import "fmt"

// Speaker identifies one of the two conversation channels.
type Speaker int

const (
	SpeakerA Speaker = iota
	SpeakerB
)

// String returns "A" or "B".
func (s Speaker) String() string {
	if s == SpeakerB {
		return "B"
	}
	return "A"
}

// MarshalText encodes the speaker as "A" or "B".
func (s Speaker) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes "A" or "B".
func (s *Speaker) UnmarshalText(text []byte) error {
	switch string(text) {
	case "A", "a":
		*s = SpeakerA
	case "B", "b":
		*s = SpeakerB
	default:
		return fmt.Errorf("unknown speaker %q", text)
	}
	return nil
}

// Schema names the artifact layout a series was loaded from.
type Schema string

const (
	SchemaTabular  Schema = "tabular"
	SchemaDocument Schema = "document"
)

// FrameSeries is a time-aligned set of per-frame channels. Every non-nil channel
// has the same length and frame order is the time axis.
type FrameSeries struct {
	Schema Schema

	// VAD holds voice activity per speaker, either 0/1 or a probability.
	VAD [2][]float64

	// PNow and PFuture are the probabilities that speaker A is the next speaker,
	// now and in the near future.
	PNow    []float64
	PFuture []float64

	// Optional channels.
	PBC     [2][]float64 // backchannel probability per speaker
	Entropy []float64    // H
	TopK    [][]int      // precomputed top-k category indices
	TopKP   [][]float64  // precomputed top-k scores
	Probs   [][]float64  // raw categorical score vectors

	// Malformed lists the records dropped while loading.
	Malformed []*MalformedFieldError
}

// Len returns the number of frames.
func (s *FrameSeries) Len() int {
	return len(s.PNow)
}

// HasTopK reports whether precomputed top-k columns are present.
func (s *FrameSeries) HasTopK() bool {
	return s.TopK != nil && s.TopKP != nil
}

// HasProbs reports whether raw score vectors are present.
func (s *FrameSeries) HasProbs() bool {
	return s.Probs != nil
}

// HasBackchannel reports whether backchannel probabilities are present.
func (s *FrameSeries) HasBackchannel() bool {
	return s.PBC[0] != nil && s.PBC[1] != nil
}

// HasEntropy reports whether the entropy channel is present.
func (s *FrameSeries) HasEntropy() bool {
	return s.Entropy != nil
}

// dropFrames removes the given frame indices from every channel.
func (s *FrameSeries) dropFrames(bad map[int]bool) {
	if len(bad) == 0 {
		return
	}
	for i := range s.VAD {
		s.VAD[i] = dropFloats(s.VAD[i], bad)
		s.PBC[i] = dropFloats(s.PBC[i], bad)
	}
	s.PNow = dropFloats(s.PNow, bad)
	s.PFuture = dropFloats(s.PFuture, bad)
	s.Entropy = dropFloats(s.Entropy, bad)
	s.TopK = dropRows(s.TopK, bad)
	s.TopKP = dropRows(s.TopKP, bad)
	s.Probs = dropRows(s.Probs, bad)
}

func dropFloats(values []float64, bad map[int]bool) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, 0, len(values))
	for i, v := range values {
		if !bad[i] {
			out = append(out, v)
		}
	}
	return out
}

func dropRows[T any](rows [][]T, bad map[int]bool) [][]T {
	if rows == nil {
		return nil
	}
	out := make([][]T, 0, len(rows))
	for i, row := range rows {
		if !bad[i] {
			out = append(out, row)
		}
	}
	return out
}
