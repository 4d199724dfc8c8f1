package instrument

import "fmt"

// DACTuner drives the YIG driver through an analog voltage output. The
// commanded coil current (amps) is mapped to output volts with
// volts = Gain*value + Offset.
type DACTuner struct {
	t      Transport
	name   string
	Gain   float64
	Offset float64
}

var _ Tunable = &DACTuner{}

// NewDACTuner returns a tuner with unity gain and no offset.
func NewDACTuner(t Transport) *DACTuner {
	return &DACTuner{t: t, name: "yig-tuner", Gain: 1}
}

func (d *DACTuner) SetPoint(value float64) error {
	native := d.Gain*value + d.Offset
	return wrap(d.name, "set point", d.t.Command(fmt.Sprintf("SOUR:VOLT %s", formatFloat(native))))
}

func (d *DACTuner) Close() error {
	return wrap(d.name, "close", d.t.Close())
}
