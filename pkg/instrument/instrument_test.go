package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloat(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "-2.345E+01\n", want: -23.45},
		{in: " 1.5e9 ", want: 1.5e9},
		{in: "3.0,4.0,5.0", want: 3},
		{in: "", wantErr: true},
		{in: "OVLD", wantErr: true},
	}
	for _, c := range cases {
		got, err := parseFloat(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.InDelta(t, c.want, got, 1e-9, c.in)
	}
}

func TestChopperSetPath(t *testing.T) {
	line := newFakeLine("OK\n", "OK\n")
	c := NewChopper(line)

	require.NoError(t, c.SetPath(PathHot))
	require.NoError(t, c.SetPath(PathCold))
	assert.Equal(t, []string{"PATH1", "PATH0"}, line.lines())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, line.closed)
}

func TestChopperUnexpectedResponse(t *testing.T) {
	c := NewChopper(newFakeLine("ERR\n"))

	err := c.SetPath(PathHot)
	var ierr *Error
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, "chopper", ierr.Device)
	assert.Contains(t, err.Error(), "ERR")
}

func TestErrorWrap(t *testing.T) {
	assert.NoError(t, wrap("nrx", "read power", nil))

	cause := errors.New("broken pipe")
	err := wrap("nrx", "read power", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "instrument nrx: read power: broken pipe", err.Error())
}

func TestSimBenchCalibration(t *testing.T) {
	sim := NewSimBench(1)
	sim.Noise = 0

	set, err := sim.OpenCalibration(context.Background())
	require.NoError(t, err)

	require.NoError(t, set.Source.SetCurrent(0.05))
	f, err := set.Analyzer.PeakFrequency()
	require.NoError(t, err)
	assert.InDelta(t, sim.Slope*0.05+sim.Intercept, f, 1)

	// Falling current lands below the rising branch.
	require.NoError(t, set.Source.SetCurrent(0.04))
	down, err := set.Analyzer.PeakFrequency()
	require.NoError(t, err)
	assert.InDelta(t, sim.Slope*0.04+sim.Intercept-sim.Hysteresis, down, 1)

	require.NoError(t, set.Close())
	require.NoError(t, set.Close())
	opened, closed := sim.Handles()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)
}

func TestSimBenchHotExcess(t *testing.T) {
	sim := NewSimBench(1)
	sim.Noise = 0

	set, err := sim.OpenMeasurement(context.Background(), true)
	require.NoError(t, err)
	defer set.Close()

	require.NoError(t, set.Tuner.SetPoint(0.1))
	cold, err := set.Meter.ReadPower()
	require.NoError(t, err)

	require.NoError(t, set.Chopper.SetPath(PathHot))
	hot, err := set.Meter.ReadPower()
	require.NoError(t, err)

	assert.InDelta(t, sim.HotExcess, hot-cold, 1e-9)
}
