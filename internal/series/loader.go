package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MalformedPolicy decides what happens to a record that fails to decode.
type MalformedPolicy string

const (
	// PolicyDrop removes the record from every channel and keeps loading.
	PolicyDrop MalformedPolicy = "drop"
	// PolicyStrict fails the load with a SchemaError.
	PolicyStrict MalformedPolicy = "strict"
)

// Tabular column names.
const (
	ColumnV1      = "v1"
	ColumnV2      = "v2"
	ColumnPNow    = "p_now"
	ColumnPFuture = "p_future"
	ColumnTopK    = "topk"
	ColumnTopKP   = "topk_p"
)

// Loader parses artifacts into FrameSeries values. It holds no per-request
// state and is safe for concurrent use.
type Loader struct {
	policy MalformedPolicy
	logger *slog.Logger
}

// NewLoader creates a loader with the given malformed-record policy.
func NewLoader(policy MalformedPolicy, logger *slog.Logger) (*Loader, error) {
	switch policy {
	case PolicyDrop, PolicyStrict:
	case "":
		policy = PolicyDrop
	default:
		return nil, fmt.Errorf("unknown malformed policy %q", policy)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{policy: policy, logger: logger}, nil
}

// LoadFile reads the artifact at path, choosing the format from its extension.
func (l *Loader) LoadFile(path string) (*FrameSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return l.LoadTabular(f, '\t', path)
	case ".csv":
		return l.LoadTabular(f, ',', path)
	case ".json":
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		return l.LoadDocument(data, jsonCodec, path)
	case ".cbor":
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
		}
		return l.LoadDocument(data, cborCodec, path)
	default:
		return nil, &SchemaError{Path: path, Field: "format", Reason: "unsupported artifact extension " + filepath.Ext(path)}
	}
}

// LoadTabular parses a delimited table with a header row. Columns are located
// by name; unknown columns (such as a leading index) are ignored.
func (l *Loader) LoadTabular(r io.Reader, comma rune, name string) (*FrameSeries, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaError{Path: name, Field: "header", Reason: "empty artifact"}
		}
		return nil, &SchemaError{Path: name, Field: "header", Reason: "unreadable header", Err: err}
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{ColumnV1, ColumnV2, ColumnPNow, ColumnPFuture} {
		if _, ok := cols[required]; !ok {
			return nil, &SchemaError{Path: name, Field: required, Reason: "missing column"}
		}
	}
	_, hasTopK := cols[ColumnTopK]
	_, hasTopKP := cols[ColumnTopKP]
	if hasTopK != hasTopKP {
		missing := ColumnTopK
		if hasTopK {
			missing = ColumnTopKP
		}
		return nil, &SchemaError{Path: name, Field: missing, Reason: "top-k columns must appear together"}
	}

	s := &FrameSeries{Schema: SchemaTabular}
	if hasTopK {
		s.TopK = [][]int{}
		s.TopKP = [][]float64{}
	}

	for record := 0; ; record++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("failed to read artifact %s: %w", name, err)
			}
			if ferr := l.malformed(s, name, &MalformedFieldError{Record: record, Field: "row", Err: err}); ferr != nil {
				return nil, ferr
			}
			continue
		}

		if merr := decodeRow(s, row, cols, hasTopK, record); merr != nil {
			if ferr := l.malformed(s, name, merr); ferr != nil {
				return nil, ferr
			}
		}
	}

	if len(s.Malformed) > 0 {
		l.logger.Warn("Dropped malformed records",
			slog.String("artifact", name),
			slog.Int("dropped", len(s.Malformed)),
			slog.Int("frames", s.Len()),
		)
	}
	return s, nil
}

// decodeRow appends one row to s, or leaves s untouched and returns the first
// field that failed to decode.
func decodeRow(s *FrameSeries, row []string, cols map[string]int, hasTopK bool, record int) *MalformedFieldError {
	cell := func(column string) (string, *MalformedFieldError) {
		i := cols[column]
		if i >= len(row) {
			return "", &MalformedFieldError{Record: record, Field: column, Err: errors.New("missing cell")}
		}
		return strings.TrimSpace(row[i]), nil
	}
	number := func(column string) (float64, *MalformedFieldError) {
		raw, merr := cell(column)
		if merr != nil {
			return 0, merr
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, &MalformedFieldError{Record: record, Field: column, Value: raw, Err: err}
		}
		return v, nil
	}

	var values [4]float64
	for i, column := range []string{ColumnV1, ColumnV2, ColumnPNow, ColumnPFuture} {
		v, merr := number(column)
		if merr != nil {
			return merr
		}
		values[i] = v
	}

	var (
		topk  []int
		topkP []float64
	)
	if hasTopK {
		raw, merr := cell(ColumnTopK)
		if merr != nil {
			return merr
		}
		var err error
		if topk, err = DecodeIntList(raw); err != nil {
			return &MalformedFieldError{Record: record, Field: ColumnTopK, Value: raw, Err: err}
		}
		if raw, merr = cell(ColumnTopKP); merr != nil {
			return merr
		}
		if topkP, err = DecodeFloatList(raw); err != nil {
			return &MalformedFieldError{Record: record, Field: ColumnTopKP, Value: raw, Err: err}
		}
	}

	s.VAD[0] = append(s.VAD[0], values[0])
	s.VAD[1] = append(s.VAD[1], values[1])
	s.PNow = append(s.PNow, values[2])
	s.PFuture = append(s.PFuture, values[3])
	if hasTopK {
		s.TopK = append(s.TopK, topk)
		s.TopKP = append(s.TopKP, topkP)
	}
	return nil
}

// malformed applies the loader policy to a record that failed to decode.
func (l *Loader) malformed(s *FrameSeries, name string, merr *MalformedFieldError) error {
	if l.policy == PolicyStrict {
		return &SchemaError{Path: name, Field: merr.Field, Reason: "malformed record", Err: merr}
	}
	l.logger.Debug("Dropping malformed record",
		slog.String("artifact", name),
		slog.Int("record", merr.Record),
		slog.String("field", merr.Field),
		slog.String("error", merr.Err.Error()),
	)
	s.Malformed = append(s.Malformed, merr)
	return nil
}
