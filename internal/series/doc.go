// Package series loads persisted per-session model artifacts into a FrameSeries.
// It accepts delimited tables (tsv/csv) with literal-encoded top-k cells and
// structured JSON or CBOR documents, and normalizes both into one columnar model.
package series
