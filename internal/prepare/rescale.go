package prepare

// Rescale maps a probability onto a one-sided confidence: values at or below
// 0.5 become 0 and (0.5, 1] stretches linearly onto (0, 1]. NaN maps to 0.
func Rescale(p float64) float64 {
	c := 2*p - 1
	if !(c > 0) {
		return 0
	}
	return c
}

// RescaleAll applies Rescale element-wise.
func RescaleAll(ps []float64) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = Rescale(p)
	}
	return out
}

// RescaleComplement returns Rescale(1-p) element-wise, the confidence for the
// other speaker. This is not 1-Rescale(p).
func RescaleComplement(ps []float64) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = Rescale(1 - p)
	}
	return out
}
