package logits

import "math"

// Softmax converts logits into a probability distribution. When temperature
// is positive the logits are divided by it first; lower values sharpen the
// distribution and higher values flatten it. +Inf logits take all of the
// mass; NaN logits propagate and are rejected by the samplers.
func Softmax(logits []float32, temperature float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	inv := 1.0
	if temperature > 0 {
		inv = 1 / temperature
	}

	maxv := math.Inf(-1)
	for i, l := range logits {
		out[i] = float64(l) * inv
		if out[i] > maxv {
			maxv = out[i]
		}
	}
	if math.IsInf(maxv, -1) {
		// Every logit is -Inf; nothing to normalise.
		for i := range out {
			out[i] = 0
		}
		return out
	}

	if math.IsInf(maxv, 1) {
		// The limit of softmax: mass is shared by the +Inf entries.
		var n float64
		for i, v := range out {
			out[i] = 0
			if math.IsInf(v, 1) {
				out[i] = 1
				n++
			}
		}
		for i := range out {
			out[i] /= n
		}
		return out
	}

	var sum float64
	for i, v := range out {
		e := math.Exp(v - maxv)
		out[i] = e
		sum += e
	}
	inv = 1 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}

// Widen copies float32 values into a float64 slice.
func Widen(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}
