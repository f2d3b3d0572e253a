package dsp

// Ramp scales x in place by a linear envelope running from 0 at the first
// sample to scale at the last, matching an evenly spaced [0, scale] grid.
// A single-sample input gets the full scale.
func Ramp(x []float64, scale float64) {
	n := len(x)
	if n == 0 {
		return
	}
	if n == 1 {
		x[0] *= scale
		return
	}
	step := scale / float64(n-1)
	for i := range x {
		x[i] *= float64(i) * step
	}
}

// Scale multiplies x in place by a uniform factor.
func Scale(x []float64, factor float64) {
	for i := range x {
		x[i] *= factor
	}
}
