package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/config"
	"github.com/yigbench/yig/pkg/instrument"
)

// configBench opens instruments with the addresses currently in the
// config, so a reloaded config applies to the next run. With simulate
// set it hands out a simulated bench instead.
type configBench struct {
	conf config.Config
	sim  *instrument.SimBench
}

var _ instrument.Bench = &configBench{}

func newBench(conf config.Config) *configBench {
	return &configBench{
		conf: conf,
		sim:  instrument.NewSimBench(time.Now().UnixNano()),
	}
}

func (b *configBench) current() instrument.Bench {
	if b.conf.Simulate() {
		logrus.Debug("using simulated bench")
		return b.sim
	}
	return instrument.NewHardwareBench(b.conf.Bench())
}

func (b *configBench) OpenMeasurement(ctx context.Context, chopper bool) (*instrument.MeasurementSet, error) {
	return b.current().OpenMeasurement(ctx, chopper)
}

func (b *configBench) OpenCalibration(ctx context.Context) (*instrument.CalibrationSet, error) {
	return b.current().OpenCalibration(ctx)
}
