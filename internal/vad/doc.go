// Package vad converts per-frame voice activity into speech segments.
// Each speaker channel is thresholded and scanned once; segments of different
// speakers may overlap.
package vad
