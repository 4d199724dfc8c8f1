// Package calibration holds the linear model relating YIG coil current to
// filter centre frequency. It contains:
//
//   - Coefficients: one (slope, intercept) pair
//   - Sample: one reading taken by a calibration sweep
//   - Model: the process-wide pair of mappings, replaced atomically
//
// The calibration table written by Save is a two-column CSV with a
// frequency,current header. LoadAndRefit reads the same table and refits
// both mappings without touching the bench.
package calibration
