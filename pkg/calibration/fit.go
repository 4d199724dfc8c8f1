package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Fit computes both mappings from the same samples: frequency to measured
// current and measured current to frequency. The two are fitted
// independently and are not exact inverses.
func Fit(samples []Sample) (freqToCurrent, currentToFreq Coefficients, err error) {
	freqs := make([]float64, len(samples))
	currents := make([]float64, len(samples))
	for i, s := range samples {
		freqs[i] = s.Frequency
		currents[i] = s.CurrentGet
	}

	freqToCurrent, err = linearFit(freqs, currents)
	if err != nil {
		return Coefficients{}, Coefficients{}, err
	}
	currentToFreq, err = linearFit(currents, freqs)
	if err != nil {
		return Coefficients{}, Coefficients{}, err
	}
	return freqToCurrent, currentToFreq, nil
}

// linearFit is a closed form ordinary least squares fit of ys on xs.
func linearFit(xs, ys []float64) (Coefficients, error) {
	if len(xs) != len(ys) {
		return Coefficients{}, &Error{Reason: fmt.Sprintf("mismatched sample lengths %d and %d", len(xs), len(ys))}
	}
	if distinct(xs) < 2 {
		return Coefficients{}, &Error{Reason: fmt.Sprintf("need at least 2 distinct x values, got %d", distinct(xs))}
	}

	meanX := stat.Mean(xs, nil)
	meanY := stat.Mean(ys, nil)

	// Centred sums keep precision when x is ~1e9 Hz.
	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	if sxx == 0 {
		return Coefficients{}, &Error{Reason: "singular fit"}
	}

	slope := sxy / sxx
	c := Coefficients{Slope: slope, Intercept: meanY - slope*meanX}
	if math.IsNaN(c.Slope) || math.IsInf(c.Slope, 0) || math.IsNaN(c.Intercept) || math.IsInf(c.Intercept, 0) {
		return Coefficients{}, &Error{Reason: "non-finite coefficients"}
	}
	return c, nil
}

func distinct(xs []float64) int {
	seen := make(map[float64]struct{}, len(xs))
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		seen[x] = struct{}{}
	}
	return len(seen)
}
