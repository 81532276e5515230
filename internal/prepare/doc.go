// Package prepare turns a FrameSeries into the payload consumed by the visualization client.
// It implements block smoothing, confidence rescaling, top-k extraction and the final
// assembly with its channel alignment check.
package prepare
