// Package run implements the sweep sequencers. A MeasurementRun tunes the
// YIG filter across a frequency plan and reads IF power, optionally once
// per chopper phase; a CalibrationRun ramps the coil current up and down
// and records the spectrum analyzer peak at every step.
//
// Both runs move Idle -> Running -> Completed|Cancelled|Failed exactly
// once. Instrument I/O is strictly sequential within a run. Cancellation
// comes from the context passed to Execute and is observed at the top of
// every step and during settle delays; a burst of power readings is never
// interrupted. Every exit route closes the instruments and, for
// measurements, saves whatever was collected.
package run
