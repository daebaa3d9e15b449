package waveblender

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// FieldStats summarizes a pressure field or sample block.
type FieldStats struct {
	Min, Max float64
	Mean     float64
	RMS      float64
	Peak     float64 // max |p|
	NonZero  int
}

// Summarize computes FieldStats over float32 samples.
func Summarize(samples []float32) FieldStats {
	if len(samples) == 0 {
		return FieldStats{}
	}
	v := make([]float64, len(samples))
	nonZero := 0
	for i, s := range samples {
		v[i] = float64(s)
		if s != 0 {
			nonZero++
		}
	}
	st := FieldStats{
		Min:     floats.Min(v),
		Max:     floats.Max(v),
		Mean:    floats.Sum(v) / float64(len(v)),
		RMS:     floats.Norm(v, 2) / math.Sqrt(float64(len(v))),
		NonZero: nonZero,
	}
	st.Peak = math.Max(math.Abs(st.Min), math.Abs(st.Max))
	return st
}
