package instrument

import "fmt"

// Keithley is the programmable current source that biases the YIG coil.
type Keithley struct {
	t    Transport
	name string
}

var _ SignalSource = &Keithley{}

// NewKeithley returns a source driver speaking SCPI over t.
func NewKeithley(t Transport) *Keithley {
	return &Keithley{t: t, name: "keithley"}
}

func (k *Keithley) SetCurrent(amps float64) error {
	return wrap(k.name, "set current", k.t.Command(fmt.Sprintf("SOUR:CURR %s", formatFloat(amps))))
}

func (k *Keithley) GetCurrent() (float64, error) {
	return k.queryFloat("get current", "MEAS:CURR?")
}

func (k *Keithley) GetVoltage() (float64, error) {
	return k.queryFloat("get voltage", "MEAS:VOLT?")
}

func (k *Keithley) GetSetCurrent() (float64, error) {
	return k.queryFloat("get set current", "SOUR:CURR?")
}

func (k *Keithley) queryFloat(op, cmd string) (float64, error) {
	resp, err := k.t.Query(cmd)
	if err != nil {
		return 0, wrap(k.name, op, err)
	}
	v, err := parseFloat(resp)
	return v, wrap(k.name, op, err)
}

func (k *Keithley) Close() error {
	return wrap(k.name, "close", k.t.Close())
}
