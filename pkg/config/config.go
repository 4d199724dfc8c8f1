package config

import (
	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/run"
)

// Config is the daemon configuration. Run parameters are not part of it;
// they travel with each request.
type Config interface {
	Bench() instrument.BenchConfig
	Simulate() bool

	MeasurementDelays() run.Delays
	CalibrationDelays() run.Delays
	DefaultMeasurement() run.Measurement
	DefaultCalibration() run.Calibration

	CalibrationFile() string
	CalibrationStatePath() string
	DatabasePath() string

	Cron() string
	AllowNonRootAccess() bool

	SetCron(string)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
