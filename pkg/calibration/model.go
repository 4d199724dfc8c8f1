package calibration

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Model holds the two mappings used by measurement runs. Readers always
// see both pairs from the same fit.
type Model struct {
	state     atomic.Pointer[State]
	mu        sync.Mutex // serializes writers
	statePath string
	onUpdate  func(State)
}

// NewModel returns a model with factory coefficients. Every later update
// is written to statePath unless it is empty.
func NewModel(statePath string) *Model {
	m := &Model{statePath: statePath}
	st := DefaultState()
	m.state.Store(&st)
	return m
}

// Init loads the persisted state. Without one it refits from
// calibrationFile when that exists, otherwise the factory coefficients
// stay in place.
func (m *Model) Init(calibrationFile string) {
	if m.statePath != "" {
		b, err := os.ReadFile(m.statePath)
		switch {
		case err == nil:
			var st State
			if err := json.Unmarshal(b, &st); err != nil {
				logrus.WithError(err).WithField("path", m.statePath).Warn("failed to unmarshal calibration state")
				break
			}
			m.state.Store(&st)
			logrus.WithFields(st.LogrusFields()).Info("loaded calibration state")
			return
		case !os.IsNotExist(err):
			logrus.WithError(err).WithField("path", m.statePath).Warn("failed to read calibration state")
		}
	}

	if calibrationFile != "" {
		if _, err := os.Stat(calibrationFile); err == nil {
			_, err := m.LoadAndRefit(calibrationFile)
			switch {
			case errors.Is(err, ErrPersistence) && m.State().Source == SourceFile:
				// refitted, only the state file is missing
			case err != nil:
				logrus.WithError(err).WithField("path", calibrationFile).Warn("failed to refit from calibration file, using factory coefficients")
			}
			return
		}
	}

	logrus.WithFields(m.State().LogrusFields()).Info("using factory calibration")
}

// State returns a copy of the current state.
func (m *Model) State() State {
	return *m.state.Load()
}

func (m *Model) FreqToCurrent() Coefficients {
	return m.state.Load().FreqToCurrent
}

func (m *Model) CurrentToFreq() Coefficients {
	return m.state.Load().CurrentToFreq
}

// OnUpdate registers fn to be called after every replacement.
func (m *Model) OnUpdate(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Fit fits both mappings to samples and installs them. On a fit error the
// previous coefficients are kept. An error wrapping ErrPersistence means
// the new coefficients are in use but the state file was not written.
func (m *Model) Fit(samples []Sample) (State, error) {
	ftc, ctf, err := Fit(samples)
	if err != nil {
		return m.State(), err
	}
	return m.replace(State{FreqToCurrent: ftc, CurrentToFreq: ctf, Source: SourceRun})
}

// Save writes samples to path as a calibration table, replacing any
// existing file. An empty path is a no-op.
func (m *Model) Save(samples []Sample, path string) error {
	if path == "" {
		logrus.Debug("no calibration file configured, not saving samples")
		return nil
	}
	if err := writeTableFile(path, samples); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"path": path, "samples": len(samples)}).Info("calibration table saved")
	return nil
}

// LoadAndRefit reads a calibration table and installs the refitted
// mappings. On error the previous coefficients are kept.
func (m *Model) LoadAndRefit(path string) (State, error) {
	samples, err := readTableFile(path)
	if err != nil {
		return m.State(), err
	}
	ftc, ctf, err := Fit(samples)
	if err != nil {
		return m.State(), err
	}
	return m.replace(State{FreqToCurrent: ftc, CurrentToFreq: ctf, Source: SourceFile, File: path})
}

// Reset restores the factory coefficients.
func (m *Model) Reset() (State, error) {
	return m.replace(DefaultState())
}

// replace installs st even when writing the state file fails.
func (m *Model) replace(st State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st.UpdatedAt = time.Now()
	m.state.Store(&st)
	err := m.persistLocked(st)
	if err != nil {
		logrus.WithError(err).Error("calibration updated but not persisted")
	} else {
		logrus.WithFields(st.LogrusFields()).Info("calibration updated")
	}

	if m.onUpdate != nil {
		m.onUpdate(st)
	}
	return st, err
}

func (m *Model) persistLocked(st State) error {
	if m.statePath == "" {
		return nil
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &persistenceError{op: "marshal", path: m.statePath, err: err}
	}
	if err := os.MkdirAll(filepath.Dir(m.statePath), 0755); err != nil {
		return &persistenceError{op: "create directory for", path: m.statePath, err: err}
	}
	if err := os.WriteFile(m.statePath, b, 0644); err != nil {
		return &persistenceError{op: "write", path: m.statePath, err: err}
	}
	return nil
}

func (s State) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"source":        s.Source,
		"freqToCurrent": s.FreqToCurrent.String(),
		"currentToFreq": s.CurrentToFreq.String(),
	}
}
