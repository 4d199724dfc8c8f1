// Package instrument defines the capability interfaces the run sequencers
// drive (Tunable, PowerMeter, SignalSource, SpectrumAnalyzer, ChopperSwitch),
// the concrete SCPI drivers for the YIG bench and a simulated bench.
//
// Every driver method is a single synchronous exchange with the device and
// fails with *Error. Drivers are not safe for concurrent use; the sequencers
// issue all I/O from one goroutine. Close is idempotent on every driver.
package instrument
