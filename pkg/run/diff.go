package run

import "gonum.org/v1/gonum/floats"

// DiffPower returns hot[i]-cold[i] over the first min(len(hot), len(cold))
// elements. The longer series is truncated.
func DiffPower(hot, cold []float64) []float64 {
	n := min(len(hot), len(cold))
	dst := make([]float64, n)
	floats.SubTo(dst, hot[:n], cold[:n])
	return dst
}
