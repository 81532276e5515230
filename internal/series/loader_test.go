package series

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
)

func newTestLoader(t *testing.T, policy MalformedPolicy) *Loader {
	t.Helper()
	l, err := NewLoader(policy, nil)
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	return l
}

const tsvArtifact = "\tv1\tv2\tp_now\tp_future\ttopk\ttopk_p\n" +
	"0\t1\t0\t0.9\t0.8\t[3, 1]\t[0.6, 0.3]\n" +
	"1\t1\t1\t0.4\t0.3\t[1, 3]\t[0.5, 0.25]\n" +
	"2\t0\t1\t0.2\t0.1\t[7, 2]\t[0.75, 0.125]\n"

func TestNewLoaderPolicy(t *testing.T) {
	if _, err := NewLoader("bogus", nil); err == nil {
		t.Error("Expected error for unknown policy")
	}
	l, err := NewLoader("", nil)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	if l.policy != PolicyDrop {
		t.Errorf("Expected default policy %q, got %q", PolicyDrop, l.policy)
	}
}

func TestLoadTabular(t *testing.T) {
	l := newTestLoader(t, PolicyDrop)

	s, err := l.LoadTabular(strings.NewReader(tsvArtifact), '\t', "vap.tsv")
	if err != nil {
		t.Fatalf("LoadTabular failed: %v", err)
	}

	if s.Schema != SchemaTabular {
		t.Errorf("Expected schema %q, got %q", SchemaTabular, s.Schema)
	}
	if s.Len() != 3 {
		t.Fatalf("Expected 3 frames, got %d", s.Len())
	}
	if diff := cmp.Diff([2][]float64{{1, 1, 0}, {0, 1, 1}}, s.VAD); diff != "" {
		t.Errorf("VAD mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.9, 0.4, 0.2}, s.PNow); diff != "" {
		t.Errorf("PNow mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.8, 0.3, 0.1}, s.PFuture); diff != "" {
		t.Errorf("PFuture mismatch (-want +got):\n%s", diff)
	}
	if !s.HasTopK() {
		t.Fatal("Expected precomputed top-k")
	}
	if diff := cmp.Diff([][]int{{3, 1}, {1, 3}, {7, 2}}, s.TopK); diff != "" {
		t.Errorf("TopK mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]float64{{0.6, 0.3}, {0.5, 0.25}, {0.75, 0.125}}, s.TopKP); diff != "" {
		t.Errorf("TopKP mismatch (-want +got):\n%s", diff)
	}
	if s.HasProbs() || s.HasBackchannel() || s.HasEntropy() {
		t.Error("Tabular artifact should not carry document-only channels")
	}
}

func TestLoadTabularCSVQuotedLiterals(t *testing.T) {
	l := newTestLoader(t, PolicyDrop)
	csvData := "v1,v2,p_now,p_future,topk,topk_p\n" +
		"1,0,0.7,0.6,\"[4, 5, 6]\",\"[0.5, 0.25, 0.125]\"\n"

	s, err := l.LoadTabular(strings.NewReader(csvData), ',', "vap.csv")
	if err != nil {
		t.Fatalf("LoadTabular failed: %v", err)
	}
	if diff := cmp.Diff([][]int{{4, 5, 6}}, s.TopK); diff != "" {
		t.Errorf("TopK mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTabularWithoutTopK(t *testing.T) {
	l := newTestLoader(t, PolicyDrop)
	s, err := l.LoadTabular(strings.NewReader("v1,v2,p_now,p_future\n0,1,0.5,0.5\n"), ',', "vap.csv")
	if err != nil {
		t.Fatalf("LoadTabular failed: %v", err)
	}
	if s.HasTopK() {
		t.Error("Expected no top-k columns")
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 frame, got %d", s.Len())
	}
}

func TestLoadTabularSchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "empty artifact", input: "", field: "header"},
		{name: "missing p_now", input: "v1,v2,p_future\n0,1,0.5\n", field: ColumnPNow},
		{name: "missing v2", input: "v1,p_now,p_future\n0,0.5,0.5\n", field: ColumnV2},
		{name: "topk without scores", input: "v1,v2,p_now,p_future,topk\n0,1,0.5,0.5,\"[1]\"\n", field: ColumnTopKP},
		{name: "scores without topk", input: "v1,v2,p_now,p_future,topk_p\n0,1,0.5,0.5,\"[1]\"\n", field: ColumnTopK},
	}

	l := newTestLoader(t, PolicyDrop)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadTabular(strings.NewReader(tt.input), ',', "vap.csv")
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("Expected SchemaError, got %v", err)
			}
			if se.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, se.Field)
			}
			if !strings.Contains(se.Error(), "vap.csv") {
				t.Errorf("Expected error to name the artifact, got %q", se.Error())
			}
		})
	}
}

func TestLoadTabularMalformedRecordDropped(t *testing.T) {
	l := newTestLoader(t, PolicyDrop)
	input := "v1\tv2\tp_now\tp_future\ttopk\ttopk_p\n" +
		"1\t0\t0.9\t0.8\t[3, 1]\t[0.6, 0.3]\n" +
		"1\t0\t0.8\t0.7\t[3, oops]\t[0.6, 0.3]\n" +
		"0\t1\tbad\t0.7\t[3, 1]\t[0.6, 0.3]\n" +
		"0\t1\t0.1\t0.2\t[1, 3]\t[0.9, 0.05]\n" +
		"0\t1\t0.1\n"

	s, err := l.LoadTabular(strings.NewReader(input), '\t', "vap.tsv")
	if err != nil {
		t.Fatalf("LoadTabular failed: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Expected 2 surviving frames, got %d", s.Len())
	}
	if len(s.TopK) != 2 || len(s.VAD[0]) != 2 || len(s.PFuture) != 2 {
		t.Error("Expected every channel to drop the same records")
	}
	if diff := cmp.Diff([]float64{0.9, 0.1}, s.PNow); diff != "" {
		t.Errorf("PNow mismatch (-want +got):\n%s", diff)
	}

	if len(s.Malformed) != 3 {
		t.Fatalf("Expected 3 malformed records, got %d", len(s.Malformed))
	}
	expected := []struct {
		record int
		field  string
	}{{1, ColumnTopK}, {2, ColumnPNow}, {4, ColumnPFuture}}
	for i, e := range expected {
		if s.Malformed[i].Record != e.record || s.Malformed[i].Field != e.field {
			t.Errorf("Malformed[%d]: expected record %d field %q, got record %d field %q",
				i, e.record, e.field, s.Malformed[i].Record, s.Malformed[i].Field)
		}
	}
}

func TestLoadTabularStrictPolicy(t *testing.T) {
	l := newTestLoader(t, PolicyStrict)
	input := "v1,v2,p_now,p_future,topk,topk_p\n" +
		"1,0,0.9,0.8,\"[3, 1]\",\"[0.6, 0.3]\"\n" +
		"1,0,0.8,0.7,\"[3, 1]\",\"[0.6, \"\n"

	_, err := l.LoadTabular(strings.NewReader(input), ',', "vap.csv")
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Expected SchemaError, got %v", err)
	}
	var me *MalformedFieldError
	if !errors.As(err, &me) {
		t.Fatalf("Expected wrapped MalformedFieldError, got %v", err)
	}
	if me.Record != 1 || me.Field != ColumnTopKP {
		t.Errorf("Expected record 1 field %q, got record %d field %q", ColumnTopKP, me.Record, me.Field)
	}
}

const jsonArtifact = `{
  "vad": [[[1, 0], [1, 1], [0, 1], [0, 0]]],
  "p_now": [[[0.9, 0.1], [0.7, 0.3], [0.2, 0.8], [0.5, 0.5]]],
  "p_future": [[[0.8, 0.2], [0.6, 0.4], [0.3, 0.7], [0.4, 0.6]]],
  "p_bc": [[[0.1, 0.2], [0.3, 0.4], [0.5, 0.6], [0.7, 0.8]]],
  "H": [[1.5, 1.25, 1.0, 0.5]],
  "probs": [[[0.1, 0.6, 0.3], [0.2, 0.2, 0.6], [0.7, 0.2, 0.1], [0.3, 0.3, 0.4]]],
  "vad_list": [[[[0.0, 0.04]], [[0.02, 0.06]]]]
}`

func TestLoadDocumentJSON(t *testing.T) {
	l := newTestLoader(t, PolicyDrop)
	s, err := l.LoadDocument([]byte(jsonArtifact), JSONCodec(), "output.json")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}

	if s.Schema != SchemaDocument {
		t.Errorf("Expected schema %q, got %q", SchemaDocument, s.Schema)
	}
	if s.Len() != 4 {
		t.Fatalf("Expected 4 frames, got %d", s.Len())
	}
	if diff := cmp.Diff([2][]float64{{1, 1, 0, 0}, {0, 1, 1, 0}}, s.VAD); diff != "" {
		t.Errorf("VAD mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.9, 0.7, 0.2, 0.5}, s.PNow); diff != "" {
		t.Errorf("PNow mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([2][]float64{{0.1, 0.3, 0.5, 0.7}, {0.2, 0.4, 0.6, 0.8}}, s.PBC); diff != "" {
		t.Errorf("PBC mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1.5, 1.25, 1.0, 0.5}, s.Entropy); diff != "" {
		t.Errorf("Entropy mismatch (-want +got):\n%s", diff)
	}
	if !s.HasProbs() || len(s.Probs[0]) != 3 {
		t.Errorf("Expected 3-category score vectors, got %v", s.Probs)
	}
	if s.HasTopK() {
		t.Error("Document artifact should not carry precomputed top-k")
	}
}

func TestLoadDocumentWithoutBatchDimension(t *testing.T) {
	l := newTestLoader(t, PolicyDrop)
	doc := `{"vad": [[1, 0], [0, 1]], "p_now": [[0.6, 0.4], [0.3, 0.7]], "p_future": [[0.5, 0.5], [0.1, 0.9]], "H": [0.2, 0.4], "p_bc": null}`

	s, err := l.LoadDocument([]byte(doc), JSONCodec(), "output.json")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if diff := cmp.Diff([]float64{0.6, 0.3}, s.PNow); diff != "" {
		t.Errorf("PNow mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.2, 0.4}, s.Entropy); diff != "" {
		t.Errorf("Entropy mismatch (-want +got):\n%s", diff)
	}
	if s.HasBackchannel() {
		t.Error("A null p_bc should be treated as absent")
	}
}

func TestLoadDocumentSchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{name: "not an object", doc: `[1, 2]`, field: "document"},
		{name: "missing vad", doc: `{"p_now": [[0.5]], "p_future": [[0.5]]}`, field: FieldVAD},
		{name: "missing p_future", doc: `{"vad": [[1, 0]], "p_now": [[0.5]]}`, field: FieldPFuture},
		{name: "batch of two", doc: `{"vad": [[[1, 0]], [[1, 0]]], "p_now": [[0.5]], "p_future": [[0.5]]}`, field: FieldVAD},
		{name: "length mismatch", doc: `{"vad": [[1, 0], [0, 1]], "p_now": [[0.5]], "p_future": [[0.5], [0.5]]}`, field: FieldPNow},
		{name: "non numeric", doc: `{"vad": [[1, 0]], "p_now": "high", "p_future": [[0.5]]}`, field: FieldPNow},
	}

	l := newTestLoader(t, PolicyDrop)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadDocument([]byte(tt.doc), JSONCodec(), "output.json")
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("Expected SchemaError, got %v", err)
			}
			if se.Field != tt.field {
				t.Errorf("Expected field %q, got %q (%v)", tt.field, se.Field, err)
			}
		})
	}
}

func TestLoadDocumentMalformedFrame(t *testing.T) {
	doc := `{"vad": [[1, 0], [1], [0, 1]], "p_now": [[0.6], [0.5], [0.3]], "p_future": [[0.5], [0.5], [0.1]], "H": [1, 2, 3]}`

	l := newTestLoader(t, PolicyDrop)
	s, err := l.LoadDocument([]byte(doc), JSONCodec(), "output.json")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if diff := cmp.Diff([]float64{0.6, 0.3}, s.PNow); diff != "" {
		t.Errorf("PNow mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 3}, s.Entropy); diff != "" {
		t.Errorf("Entropy mismatch (-want +got):\n%s", diff)
	}
	if len(s.Malformed) != 1 || s.Malformed[0].Record != 1 || s.Malformed[0].Field != FieldVAD {
		t.Errorf("Expected record 1 vad to be reported, got %v", s.Malformed)
	}

	strict := newTestLoader(t, PolicyStrict)
	if _, err := strict.LoadDocument([]byte(doc), JSONCodec(), "output.json"); err == nil {
		t.Error("Expected strict policy to fail")
	}
}

func TestLoadDocumentCBOR(t *testing.T) {
	doc := map[string]any{
		"vad":      [][][]float64{{{1, 0}, {0, 1}}},
		"p_now":    [][][]float64{{{0.75, 0.25}, {0.25, 0.75}}},
		"p_future": [][][]float64{{{0.5, 0.5}, {0.125, 0.875}}},
		"H":        [][]float64{{0.5, 0.25}},
	}
	data, err := cbor.Marshal(doc)
	if err != nil {
		t.Fatalf("cbor.Marshal failed: %v", err)
	}

	l := newTestLoader(t, PolicyDrop)
	s, err := l.LoadDocument(data, CBORCodec(), "output.cbor")
	if err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if diff := cmp.Diff([]float64{0.75, 0.25}, s.PNow); diff != "" {
		t.Errorf("PNow mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.5, 0.25}, s.Entropy); diff != "" {
		t.Errorf("Entropy mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	l := newTestLoader(t, PolicyDrop)

	s, err := l.LoadFile(write("vap.tsv", tsvArtifact))
	if err != nil {
		t.Fatalf("LoadFile(tsv) failed: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Expected 3 frames from tsv, got %d", s.Len())
	}

	s, err = l.LoadFile(write("output.json", jsonArtifact))
	if err != nil {
		t.Fatalf("LoadFile(json) failed: %v", err)
	}
	if s.Len() != 4 {
		t.Errorf("Expected 4 frames from json, got %d", s.Len())
	}

	_, err = l.LoadFile(write("vap.parquet", "x"))
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Errorf("Expected SchemaError for unknown extension, got %v", err)
	}

	_, err = l.LoadFile(filepath.Join(dir, "missing.tsv"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}
