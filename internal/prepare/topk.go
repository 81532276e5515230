package prepare

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// DefaultVocabularySize is the number of discrete states of the VAP model output.
const DefaultVocabularySize = 256

// ErrInvalidK is returned when the requested k is not positive.
var ErrInvalidK = errors.New("k must be a positive integer")

// TopKEntry holds the k best categories of one frame, highest score first.
type TopKEntry struct {
	Indices []int
	Scores  []float64
}

// TopK is the top-k result for every retained frame. K is the effective k,
// which is smaller than the requested one when it had to be clamped.
type TopK struct {
	K         int
	Requested int
	Entries   []TopKEntry
}

// Clamped reports whether fewer than the requested categories are returned.
func (t *TopK) Clamped() bool {
	return t.K < t.Requested
}

// Indices returns the per-frame index lists.
func (t *TopK) Indices() [][]int {
	out := make([][]int, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Indices
	}
	return out
}

// Scores returns the per-frame score lists.
func (t *TopK) Scores() [][]float64 {
	out := make([][]float64, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = e.Scores
	}
	return out
}

// TopKExtractor validates precomputed top-k data or ranks raw score vectors.
type TopKExtractor struct {
	VocabularySize int
}

// NewTopKExtractor creates an extractor for the given category vocabulary.
func NewTopKExtractor(vocabularySize int) (*TopKExtractor, error) {
	if vocabularySize < 1 {
		return nil, fmt.Errorf("vocabulary size must be positive, got %d", vocabularySize)
	}
	return &TopKExtractor{VocabularySize: vocabularySize}, nil
}

// FromPrecomputed validates per-frame index and score lists and passes them
// through. Every frame must carry the same number of entries, and every index
// must be inside the vocabulary. A requested k below the stored width keeps
// the leading (highest scoring) entries; a larger one is clamped.
func (e *TopKExtractor) FromPrecomputed(indices [][]int, scores [][]float64, k int) (*TopK, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(indices) != len(scores) {
		return nil, &TopKShapeError{Frame: min(len(indices), len(scores)), Reason: fmt.Sprintf("%d index rows but %d score rows", len(indices), len(scores))}
	}

	width := 0
	if len(indices) > 0 {
		width = len(indices[0])
	}
	for f := range indices {
		if len(indices[f]) != width || len(scores[f]) != width {
			return nil, &TopKShapeError{
				Frame:  f,
				Reason: fmt.Sprintf("got %d indices and %d scores, want %d", len(indices[f]), len(scores[f]), width),
			}
		}
		for _, idx := range indices[f] {
			if idx < 0 || idx >= e.VocabularySize {
				return nil, &TopKShapeError{Frame: f, Reason: fmt.Sprintf("index %d outside vocabulary of %d", idx, e.VocabularySize)}
			}
		}
	}

	effective := min(k, e.VocabularySize)
	if len(indices) > 0 {
		effective = min(effective, width)
	}
	out := &TopK{K: effective, Requested: k, Entries: make([]TopKEntry, len(indices))}
	for f := range indices {
		out.Entries[f] = TopKEntry{Indices: indices[f][:effective], Scores: scores[f][:effective]}
	}
	return out, nil
}

// FromScores ranks every frame's score vector and keeps the k best categories,
// ties broken by the lower category index. k is clamped to the vector width.
// Vectors wider than the vocabulary are rejected.
func (e *TopKExtractor) FromScores(frames [][]float64, k int) (*TopK, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}

	vocab := e.VocabularySize
	if len(frames) > 0 {
		vocab = len(frames[0])
	}
	if vocab > e.VocabularySize {
		return nil, &TopKShapeError{Frame: 0, Reason: fmt.Sprintf("score vector has %d categories, vocabulary has %d", vocab, e.VocabularySize)}
	}
	effective := min(k, vocab)
	out := &TopK{K: effective, Requested: k, Entries: make([]TopKEntry, len(frames))}

	order := make([]int, vocab)
	for f, scores := range frames {
		if len(scores) != vocab {
			return nil, &TopKShapeError{Frame: f, Reason: fmt.Sprintf("score vector has %d categories, want %d", len(scores), vocab)}
		}
		for i := range order {
			order[i] = i
		}
		slices.SortFunc(order, func(a, b int) int {
			return compareScores(scores[a], scores[b], a, b)
		})

		entry := TopKEntry{Indices: make([]int, effective), Scores: make([]float64, effective)}
		for i := 0; i < effective; i++ {
			entry.Indices[i] = order[i]
			entry.Scores[i] = scores[order[i]]
		}
		out.Entries[f] = entry
	}
	return out, nil
}

// compareScores orders by descending score, NaN last, then ascending index.
func compareScores(sa, sb float64, a, b int) int {
	nanA, nanB := math.IsNaN(sa), math.IsNaN(sb)
	switch {
	case nanA && !nanB:
		return 1
	case nanB && !nanA:
		return -1
	case sa > sb:
		return -1
	case sa < sb:
		return 1
	}
	return cmp.Compare(a, b)
}
