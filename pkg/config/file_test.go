package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileUsesDefaults(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "yig.json"))
	require.NoError(t, err)

	b := f.Bench()
	assert.Equal(t, 22, b.KeithleyAddress)
	assert.Equal(t, 20, b.SpectrumAddress)
	assert.Equal(t, "169.254.2.20", b.NRXAddress)
	assert.Equal(t, 10*time.Millisecond, b.NRXFilterTime)
	assert.Equal(t, 1.0, b.TunerGain)

	d := f.MeasurementDelays()
	assert.Equal(t, 10*time.Millisecond, d.Step)
	assert.Equal(t, 400*time.Millisecond, d.FirstPoint)
	assert.Equal(t, 2*time.Second, d.Phase)
	assert.Equal(t, 100*time.Millisecond, f.CalibrationDelays().Step)

	m := f.DefaultMeasurement()
	assert.NoError(t, m.Validate())
	assert.Equal(t, 100, m.FreqPoints)
	c := f.DefaultCalibration()
	assert.NoError(t, c.Validate())
	assert.Equal(t, f.CalibrationFile(), c.File)

	assert.False(t, f.Simulate())
	assert.Empty(t, f.Cron())
}

func TestLoadOverridesAndSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yig.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "nrxAddress": "10.0.0.5:5025",
  "stepDelay": "25ms",
  "simulate": true,
  "freqPoints": 11
}`), 0644))

	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:5025", f.Bench().NRXAddress)
	assert.Equal(t, 25*time.Millisecond, f.MeasurementDelays().Step)
	assert.True(t, f.Simulate())
	assert.Equal(t, 11, f.DefaultMeasurement().FreqPoints)

	f.SetCron("@daily")
	f.SetAllowNonRootAccess(true)
	require.NoError(t, f.Save())

	g, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, "@daily", g.Cron())
	assert.True(t, g.AllowNonRootAccess())
	assert.Equal(t, 25*time.Millisecond, g.MeasurementDelays().Step)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yig.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stepDelay": 10}`), 0644))
	_, err := NewFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))
	f, err := NewFile(path)
	require.NoError(t, err)
	assert.Equal(t, 22, f.Bench().KeithleyAddress)
}
