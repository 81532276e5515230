package series

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// Structured document field names.
const (
	FieldVAD     = "vad"
	FieldPNow    = "p_now"
	FieldPFuture = "p_future"
	FieldPBC     = "p_bc"
	FieldEntropy = "H"
	FieldProbs   = "probs"
)

// Codec decodes a structured document encoding.
type Codec struct {
	Name      string
	fields    func(data []byte) (map[string][]byte, error)
	isNull    func(raw []byte) bool
	Unmarshal func(data []byte, v any) error
}

var jsonCodec = Codec{
	Name: "json",
	fields: func(data []byte) (map[string][]byte, error) {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := make(map[string][]byte, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out, nil
	},
	isNull: func(raw []byte) bool {
		return string(bytes.TrimSpace(raw)) == "null"
	},
	Unmarshal: json.Unmarshal,
}

var cborCodec = Codec{
	Name: "cbor",
	fields: func(data []byte) (map[string][]byte, error) {
		var raw map[string]cbor.RawMessage
		if err := cbor.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		out := make(map[string][]byte, len(raw))
		for k, v := range raw {
			out[k] = v
		}
		return out, nil
	},
	isNull: func(raw []byte) bool {
		// null or undefined
		return len(raw) == 1 && (raw[0] == 0xf6 || raw[0] == 0xf7)
	},
	Unmarshal: cbor.Unmarshal,
}

// JSONCodec returns the codec for JSON documents.
func JSONCodec() Codec { return jsonCodec }

// CBORCodec returns the codec for CBOR documents.
func CBORCodec() Codec { return cborCodec }

// LoadDocument parses a structured document. Array fields may carry a leading
// batch dimension of length one, as written by the model export.
func (l *Loader) LoadDocument(data []byte, codec Codec, name string) (*FrameSeries, error) {
	fields, err := codec.fields(data)
	if err != nil {
		return nil, &SchemaError{Path: name, Field: "document", Reason: "not a " + codec.Name + " object", Err: err}
	}
	d := &documentDecoder{fields: fields, codec: codec, path: name}

	vad, err := d.frames(FieldVAD, true)
	if err != nil {
		return nil, err
	}
	n := len(vad)
	pNow, err := d.frames(FieldPNow, true)
	if err != nil {
		return nil, err
	}
	pFuture, err := d.frames(FieldPFuture, true)
	if err != nil {
		return nil, err
	}
	pBC, err := d.frames(FieldPBC, false)
	if err != nil {
		return nil, err
	}
	probs, err := d.frames(FieldProbs, false)
	if err != nil {
		return nil, err
	}
	entropy, err := d.scalars(FieldEntropy)
	if err != nil {
		return nil, err
	}

	for _, c := range []struct {
		field  string
		length int
	}{
		{FieldPNow, len(pNow)},
		{FieldPFuture, len(pFuture)},
		{FieldPBC, len(pBC)},
		{FieldProbs, len(probs)},
		{FieldEntropy, len(entropy)},
	} {
		if d.present(c.field) && c.length != n {
			return nil, &SchemaError{Path: name, Field: c.field, Reason: fmt.Sprintf("has %d frames, %s has %d", c.length, FieldVAD, n)}
		}
	}

	s := &FrameSeries{
		Schema:  SchemaDocument,
		PNow:    make([]float64, n),
		PFuture: make([]float64, n),
		Entropy: entropy,
		Probs:   probs,
	}
	s.VAD[0], s.VAD[1] = make([]float64, n), make([]float64, n)
	if pBC != nil {
		s.PBC[0], s.PBC[1] = make([]float64, n), make([]float64, n)
	}

	bad := make(map[int]*MalformedFieldError)
	check := func(field string, frame []float64, i, width int) bool {
		if len(frame) >= width {
			return true
		}
		if _, seen := bad[i]; !seen {
			bad[i] = &MalformedFieldError{
				Record: i,
				Field:  field,
				Value:  fmt.Sprint(frame),
				Err:    fmt.Errorf("want %d channels, got %d", width, len(frame)),
			}
		}
		return false
	}
	for i := 0; i < n; i++ {
		if check(FieldVAD, vad[i], i, 2) {
			s.VAD[0][i], s.VAD[1][i] = vad[i][0], vad[i][1]
		}
		if check(FieldPNow, pNow[i], i, 1) {
			s.PNow[i] = pNow[i][0]
		}
		if check(FieldPFuture, pFuture[i], i, 1) {
			s.PFuture[i] = pFuture[i][0]
		}
		if pBC != nil && check(FieldPBC, pBC[i], i, 2) {
			s.PBC[0][i], s.PBC[1][i] = pBC[i][0], pBC[i][1]
		}
	}

	if len(bad) > 0 {
		records := make([]int, 0, len(bad))
		for i := range bad {
			records = append(records, i)
		}
		sort.Ints(records)
		drop := make(map[int]bool, len(bad))
		for _, i := range records {
			if err := l.malformed(s, name, bad[i]); err != nil {
				return nil, err
			}
			drop[i] = true
		}
		s.dropFrames(drop)
		l.logger.Warn("Dropped malformed records",
			slog.String("artifact", name),
			slog.Int("dropped", len(drop)),
			slog.Int("frames", s.Len()),
		)
	}
	return s, nil
}

type documentDecoder struct {
	fields map[string][]byte
	codec  Codec
	path   string
}

// present reports whether the field exists and is not null.
func (d *documentDecoder) present(field string) bool {
	raw, ok := d.fields[field]
	return ok && !d.codec.isNull(raw)
}

// frames decodes a [batch][frame][channel] or [frame][channel] array.
func (d *documentDecoder) frames(field string, required bool) ([][]float64, error) {
	if !d.present(field) {
		if required {
			return nil, &SchemaError{Path: d.path, Field: field, Reason: "missing field"}
		}
		return nil, nil
	}
	raw := d.fields[field]

	var batched [][][]float64
	if err := d.codec.Unmarshal(raw, &batched); err == nil {
		switch len(batched) {
		case 0:
			return [][]float64{}, nil
		case 1:
			return batched[0], nil
		}
		return nil, &SchemaError{Path: d.path, Field: field, Reason: fmt.Sprintf("batch dimension must be 1, got %d", len(batched))}
	}

	var plain [][]float64
	if err := d.codec.Unmarshal(raw, &plain); err != nil {
		return nil, &SchemaError{Path: d.path, Field: field, Reason: "expected a numeric frame array", Err: err}
	}
	return plain, nil
}

// scalars decodes an optional [batch][frame] or [frame] array.
func (d *documentDecoder) scalars(field string) ([]float64, error) {
	if !d.present(field) {
		return nil, nil
	}
	raw := d.fields[field]

	var batched [][]float64
	if err := d.codec.Unmarshal(raw, &batched); err == nil {
		switch len(batched) {
		case 0:
			return []float64{}, nil
		case 1:
			return batched[0], nil
		}
		return nil, &SchemaError{Path: d.path, Field: field, Reason: fmt.Sprintf("batch dimension must be 1, got %d", len(batched))}
	}

	var plain []float64
	if err := d.codec.Unmarshal(raw, &plain); err != nil {
		return nil, &SchemaError{Path: d.path, Field: field, Reason: "expected a numeric array", Err: err}
	}
	return plain, nil
}
