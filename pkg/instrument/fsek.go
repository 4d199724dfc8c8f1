package instrument

// FSEK is the Rohde & Schwarz FSEK spectrum analyzer used to find the
// filter's passband peak during calibration.
type FSEK struct {
	t    Transport
	name string
}

var _ SpectrumAnalyzer = &FSEK{}

// NewFSEK returns a spectrum analyzer driver speaking SCPI over t.
func NewFSEK(t Transport) *FSEK {
	return &FSEK{t: t, name: "fsek"}
}

func (f *FSEK) PeakSearch() error {
	return wrap(f.name, "peak search", f.t.Command("CALC:MARK:MAX"))
}

func (f *FSEK) PeakPower() (float64, error) {
	return f.queryFloat("get peak power", "CALC:MARK:Y?")
}

func (f *FSEK) PeakFrequency() (float64, error) {
	return f.queryFloat("get peak frequency", "CALC:MARK:X?")
}

func (f *FSEK) queryFloat(op, cmd string) (float64, error) {
	resp, err := f.t.Query(cmd)
	if err != nil {
		return 0, wrap(f.name, op, err)
	}
	v, err := parseFloat(resp)
	return v, wrap(f.name, op, err)
}

func (f *FSEK) Close() error {
	return wrap(f.name, "close", f.t.Close())
}
