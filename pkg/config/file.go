package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yigbench/yig/pkg/instrument"
	"github.com/yigbench/yig/pkg/run"
	"github.com/yigbench/yig/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PrologixPort:    ptr.To("/dev/ttyUSB0"),
		KeithleyAddress: ptr.To(22),
		SpectrumAddress: ptr.To(20),
		NRXAddress:      ptr.To("169.254.2.20"),
		NRXFilterTime:   ptr.To(Duration(10 * time.Millisecond)),
		NRXApertureTime: ptr.To(Duration(100 * time.Millisecond)),
		TunerAddress:    ptr.To("169.254.2.21"),
		TunerGain:       ptr.To(1.0),
		TunerOffset:     ptr.To(0.0),
		ChopperPort:     ptr.To("/dev/ttyUSB1"),
		ReadTimeout:     ptr.To(Duration(5 * time.Second)),

		StepDelay:            ptr.To(Duration(10 * time.Millisecond)),
		CalibrationStepDelay: ptr.To(Duration(100 * time.Millisecond)),
		FirstPointDelay:      ptr.To(Duration(400 * time.Millisecond)),
		PhaseDelay:           ptr.To(Duration(2 * time.Second)),

		FreqFrom:          ptr.To(1e9),
		FreqTo:            ptr.To(6e9),
		FreqPoints:        ptr.To(100),
		PowerPoints:       ptr.To(10),
		CurrentFrom:       ptr.To(0.0),
		CurrentTo:         ptr.To(0.1),
		CalibrationPoints: ptr.To(100),

		CalibrationFile:      ptr.To("/var/lib/yig/calibration.csv"),
		CalibrationStatePath: ptr.To("/var/lib/yig/calibration-state.json"),
		DatabasePath:         ptr.To("/var/lib/yig/yig.db"),

		Simulate:           ptr.To(false),
		CalibrationCron:    ptr.To(""),
		AllowNonRootAccess: ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// NewRawFileConfigFromConfig resolves every key of c to its effective
// value.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	b := c.Bench()
	md := c.MeasurementDelays()
	cd := c.CalibrationDelays()
	m := c.DefaultMeasurement()
	cal := c.DefaultCalibration()

	rawConfig := &RawFileConfig{
		PrologixPort:    ptr.To(b.PrologixPort),
		KeithleyAddress: ptr.To(b.KeithleyAddress),
		SpectrumAddress: ptr.To(b.SpectrumAddress),
		NRXAddress:      ptr.To(b.NRXAddress),
		NRXFilterTime:   ptr.To(Duration(b.NRXFilterTime)),
		NRXApertureTime: ptr.To(Duration(b.NRXApertureTime)),
		TunerAddress:    ptr.To(b.TunerAddress),
		TunerGain:       ptr.To(b.TunerGain),
		TunerOffset:     ptr.To(b.TunerOffset),
		ChopperPort:     ptr.To(b.ChopperPort),
		ReadTimeout:     ptr.To(Duration(b.ReadTimeout)),

		StepDelay:            ptr.To(Duration(md.Step)),
		CalibrationStepDelay: ptr.To(Duration(cd.Step)),
		FirstPointDelay:      ptr.To(Duration(md.FirstPoint)),
		PhaseDelay:           ptr.To(Duration(md.Phase)),

		FreqFrom:          ptr.To(m.FreqFrom),
		FreqTo:            ptr.To(m.FreqTo),
		FreqPoints:        ptr.To(m.FreqPoints),
		PowerPoints:       ptr.To(m.PowerPoints),
		CurrentFrom:       ptr.To(cal.CurrentFrom),
		CurrentTo:         ptr.To(cal.CurrentTo),
		CalibrationPoints: ptr.To(cal.Points),

		CalibrationFile:      ptr.To(c.CalibrationFile()),
		CalibrationStatePath: ptr.To(c.CalibrationStatePath()),
		DatabasePath:         ptr.To(c.DatabasePath()),

		Simulate:           ptr.To(c.Simulate()),
		CalibrationCron:    ptr.To(c.Cron()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// RawFileConfig is the on-disk form. Unset fields take their defaults.
type RawFileConfig struct {
	PrologixPort    *string   `json:"prologixPort,omitempty"`
	KeithleyAddress *int      `json:"keithleyAddress,omitempty"`
	SpectrumAddress *int      `json:"spectrumAddress,omitempty"`
	NRXAddress      *string   `json:"nrxAddress,omitempty"`
	NRXFilterTime   *Duration `json:"nrxFilterTime,omitempty"`
	NRXApertureTime *Duration `json:"nrxApertureTime,omitempty"`
	TunerAddress    *string   `json:"tunerAddress,omitempty"`
	TunerGain       *float64  `json:"tunerGain,omitempty"`
	TunerOffset     *float64  `json:"tunerOffset,omitempty"`
	ChopperPort     *string   `json:"chopperPort,omitempty"`
	ReadTimeout     *Duration `json:"readTimeout,omitempty"`

	StepDelay            *Duration `json:"stepDelay,omitempty"`
	CalibrationStepDelay *Duration `json:"calibrationStepDelay,omitempty"`
	FirstPointDelay      *Duration `json:"firstPointDelay,omitempty"`
	PhaseDelay           *Duration `json:"phaseDelay,omitempty"`

	FreqFrom          *float64 `json:"freqFrom,omitempty"`
	FreqTo            *float64 `json:"freqTo,omitempty"`
	FreqPoints        *int     `json:"freqPoints,omitempty"`
	PowerPoints       *int     `json:"powerPoints,omitempty"`
	CurrentFrom       *float64 `json:"currentFrom,omitempty"`
	CurrentTo         *float64 `json:"currentTo,omitempty"`
	CalibrationPoints *int     `json:"calibrationPoints,omitempty"`

	CalibrationFile      *string `json:"calibrationFile,omitempty"`
	CalibrationStatePath *string `json:"calibrationStatePath,omitempty"`
	DatabasePath         *string `json:"databasePath,omitempty"`

	Simulate           *bool   `json:"simulate,omitempty"`
	CalibrationCron    *string `json:"calibrationCron,omitempty"`
	AllowNonRootAccess *bool   `json:"allowNonRootAccess,omitempty"`
}

// get reads one field under the read lock, falling back to its default.
func get[T any](f *File, pick func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(pick(f.c), *pick(defaultFileConfig))
}

func dur(f *File, pick func(*RawFileConfig) *Duration) time.Duration {
	return time.Duration(get(f, pick))
}

func (f *File) Bench() instrument.BenchConfig {
	return instrument.BenchConfig{
		PrologixPort:    get(f, func(c *RawFileConfig) *string { return c.PrologixPort }),
		KeithleyAddress: get(f, func(c *RawFileConfig) *int { return c.KeithleyAddress }),
		SpectrumAddress: get(f, func(c *RawFileConfig) *int { return c.SpectrumAddress }),
		NRXAddress:      get(f, func(c *RawFileConfig) *string { return c.NRXAddress }),
		NRXFilterTime:   dur(f, func(c *RawFileConfig) *Duration { return c.NRXFilterTime }),
		NRXApertureTime: dur(f, func(c *RawFileConfig) *Duration { return c.NRXApertureTime }),
		TunerAddress:    get(f, func(c *RawFileConfig) *string { return c.TunerAddress }),
		TunerGain:       get(f, func(c *RawFileConfig) *float64 { return c.TunerGain }),
		TunerOffset:     get(f, func(c *RawFileConfig) *float64 { return c.TunerOffset }),
		ChopperPort:     get(f, func(c *RawFileConfig) *string { return c.ChopperPort }),
		ReadTimeout:     dur(f, func(c *RawFileConfig) *Duration { return c.ReadTimeout }),
	}
}

func (f *File) Simulate() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.Simulate })
}

func (f *File) MeasurementDelays() run.Delays {
	return run.Delays{
		Step:       dur(f, func(c *RawFileConfig) *Duration { return c.StepDelay }),
		FirstPoint: dur(f, func(c *RawFileConfig) *Duration { return c.FirstPointDelay }),
		Phase:      dur(f, func(c *RawFileConfig) *Duration { return c.PhaseDelay }),
	}
}

func (f *File) CalibrationDelays() run.Delays {
	return run.Delays{
		Step:       dur(f, func(c *RawFileConfig) *Duration { return c.CalibrationStepDelay }),
		FirstPoint: dur(f, func(c *RawFileConfig) *Duration { return c.FirstPointDelay }),
	}
}

func (f *File) DefaultMeasurement() run.Measurement {
	return run.Measurement{
		FreqFrom:    get(f, func(c *RawFileConfig) *float64 { return c.FreqFrom }),
		FreqTo:      get(f, func(c *RawFileConfig) *float64 { return c.FreqTo }),
		FreqPoints:  get(f, func(c *RawFileConfig) *int { return c.FreqPoints }),
		PowerPoints: get(f, func(c *RawFileConfig) *int { return c.PowerPoints }),
		Delays:      f.MeasurementDelays(),
	}
}

func (f *File) DefaultCalibration() run.Calibration {
	return run.Calibration{
		CurrentFrom: get(f, func(c *RawFileConfig) *float64 { return c.CurrentFrom }),
		CurrentTo:   get(f, func(c *RawFileConfig) *float64 { return c.CurrentTo }),
		Points:      get(f, func(c *RawFileConfig) *int { return c.CalibrationPoints }),
		Delays:      f.CalibrationDelays(),
		File:        f.CalibrationFile(),
	}
}

func (f *File) CalibrationFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.CalibrationFile })
}

func (f *File) CalibrationStatePath() string {
	return get(f, func(c *RawFileConfig) *string { return c.CalibrationStatePath })
}

func (f *File) DatabasePath() string {
	return get(f, func(c *RawFileConfig) *string { return c.DatabasePath })
}

func (f *File) Cron() string {
	return get(f, func(c *RawFileConfig) *string { return c.CalibrationCron })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetCron(expr string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.CalibrationCron = &expr
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// A missing file means all defaults. Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if err := json.Unmarshal(b, &conf); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f.c); err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	b := f.Bench()
	return logrus.Fields{
		"prologixPort":    b.PrologixPort,
		"keithleyAddress": b.KeithleyAddress,
		"spectrumAddress": b.SpectrumAddress,
		"nrxAddress":      b.NRXAddress,
		"tunerAddress":    b.TunerAddress,
		"chopperPort":     b.ChopperPort,
		"simulate":        f.Simulate(),
		"calibrationFile": f.CalibrationFile(),
		"databasePath":    f.DatabasePath(),
		"calibrationCron": f.Cron(),
	}
}
