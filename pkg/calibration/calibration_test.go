package calibration

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lineSamples(slope, intercept float64, currents ...float64) []Sample {
	var samples []Sample
	for _, c := range currents {
		samples = append(samples, Sample{CurrentSet: c, CurrentGet: c, Frequency: slope*c + intercept})
	}
	return samples
}

func TestLinearFitRecoversLine(t *testing.T) {
	xs := []float64{-2, -1, 0, 1, 2, 3.5}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2*x + 1
	}

	c, err := linearFit(xs, ys)
	require.NoError(t, err)
	assert.InDelta(t, 2, c.Slope, 1e-12)
	assert.InDelta(t, 1, c.Intercept, 1e-12)
	assert.InDelta(t, 9, c.Apply(4), 1e-12)
}

func TestFitBothMappings(t *testing.T) {
	samples := lineSamples(3.5e10, 1.1e8, 0, 0.025, 0.05, 0.075, 0.1)

	ftc, ctf, err := Fit(samples)
	require.NoError(t, err)

	assert.InEpsilon(t, 3.5e10, ctf.Slope, 1e-9)
	assert.InEpsilon(t, 1.1e8, ctf.Intercept, 1e-6)
	assert.InEpsilon(t, 1/3.5e10, ftc.Slope, 1e-9)
	assert.InDelta(t, 0.05, ftc.Apply(ctf.Apply(0.05)), 1e-9)
}

func TestFitNeedsTwoDistinctValues(t *testing.T) {
	cases := map[string][]Sample{
		"empty":    nil,
		"single":   lineSamples(2, 1, 0.5),
		"repeated": lineSamples(2, 1, 0.5, 0.5, 0.5),
	}
	for name, samples := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Fit(samples)
			var cerr *Error
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.NotEmpty(t, cerr.Reason)
		})
	}
}

func TestModelFitKeepsPreviousOnError(t *testing.T) {
	m := NewModel("")
	before := m.State()

	_, err := m.Fit(lineSamples(2, 1, 1, 1))
	require.Error(t, err)
	assert.Equal(t, before, m.State())
	assert.Equal(t, DefaultFreqToCurrent, m.FreqToCurrent())
}

func TestModelSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal", "yig.csv")
	samples := lineSamples(3.49e10, 1.14e8, 0.01, 0.02, 0.03, 0.04, 0.03, 0.02, 0.01)
	samples[4].CurrentGet += 1e-5

	m := NewModel(filepath.Join(dir, "state.json"))
	fitted, err := m.Fit(samples)
	require.NoError(t, err)
	require.NoError(t, m.Save(samples, path))

	other := NewModel("")
	loaded, err := other.LoadAndRefit(path)
	require.NoError(t, err)

	assert.InEpsilon(t, fitted.FreqToCurrent.Slope, loaded.FreqToCurrent.Slope, 1e-12)
	assert.InEpsilon(t, fitted.FreqToCurrent.Intercept, loaded.FreqToCurrent.Intercept, 1e-9)
	assert.InEpsilon(t, fitted.CurrentToFreq.Slope, loaded.CurrentToFreq.Slope, 1e-12)
	assert.InEpsilon(t, fitted.CurrentToFreq.Intercept, loaded.CurrentToFreq.Intercept, 1e-9)
	assert.Equal(t, SourceFile, loaded.Source)
	assert.Equal(t, path, loaded.File)
}

func TestModelSaveEmptyPathIsNoop(t *testing.T) {
	m := NewModel("")
	assert.NoError(t, m.Save(lineSamples(2, 1, 0, 1), ""))
}

func TestModelLoadMissingFile(t *testing.T) {
	m := NewModel("")
	_, err := m.LoadAndRefit(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, SourceDefault, m.State().Source)
}

func TestReadTableWithIndexColumn(t *testing.T) {
	in := ",frequency,current\n0,1000000000.0,0.025\n1,2000000000.0,0.05\n"
	samples, err := ReadTable(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 1e9, samples[0].Frequency)
	assert.Equal(t, 0.05, samples[1].CurrentGet)
}

func TestReadTableRejectsMissingColumns(t *testing.T) {
	_, err := ReadTable(strings.NewReader("freq,amps\n1,2\n"))
	assert.Error(t, err)

	_, err = ReadTable(strings.NewReader(""))
	assert.Error(t, err)
}

func TestWriteTableHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, lineSamples(2, 1, 0.5)))
	assert.Equal(t, "frequency,current\n2,0.5\n", buf.String())
}

func TestModelInitOrder(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "yig.csv")
	statePath := filepath.Join(dir, "state.json")

	// No state, no table: factory coefficients.
	m := NewModel(statePath)
	m.Init(table)
	assert.Equal(t, SourceDefault, m.State().Source)

	// Table only: refit.
	require.NoError(t, m.Save(lineSamples(2, 1, 0, 1, 2), table))
	m = NewModel(statePath)
	m.Init(table)
	assert.Equal(t, SourceFile, m.State().Source)
	assert.InDelta(t, 2, m.CurrentToFreq().Slope, 1e-12)

	// The refit wrote a state file which wins from now on.
	_, err := os.Stat(statePath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(table))
	m = NewModel(statePath)
	m.Init(table)
	assert.Equal(t, SourceFile, m.State().Source)
	assert.InDelta(t, 1, m.CurrentToFreq().Intercept, 1e-12)
}

func TestModelOnUpdate(t *testing.T) {
	m := NewModel("")
	var got []State
	m.OnUpdate(func(s State) { got = append(got, s) })

	_, err := m.Fit(lineSamples(2, 1, 0, 1))
	require.NoError(t, err)
	_, err = m.Reset()
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, SourceRun, got[0].Source)
	assert.Equal(t, SourceDefault, got[1].Source)
}

func TestModelReportsUnwrittenState(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	m := NewModel(filepath.Join(blocker, "state.json"))

	st, err := m.Fit(lineSamples(2, 1, 0, 1, 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPersistence), "got %v", err)
	assert.Equal(t, SourceRun, st.Source)
	assert.Equal(t, st, m.State())
	assert.InDelta(t, 2, m.CurrentToFreq().Slope, 1e-12)

	st, err = m.Reset()
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, SourceDefault, st.Source)
	assert.Equal(t, DefaultCurrentToFreq, m.CurrentToFreq())
}
