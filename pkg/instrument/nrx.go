package instrument

import (
	"fmt"
	"time"
)

// NRX is the Rohde & Schwarz NRX power meter reading IF power in dBm.
type NRX struct {
	t    Transport
	name string
}

var _ PowerMeter = &NRX{}

// NewNRX returns a power meter driver speaking SCPI over t.
func NewNRX(t Transport) *NRX {
	return &NRX{t: t, name: "nrx"}
}

// Init configures dBm readings with the given filter and aperture times.
func (n *NRX) Init(filterTime, apertureTime time.Duration) error {
	cmds := []string{
		"UNIT:POW DBM",
		fmt.Sprintf("SENS:AVER:TIME %s", formatFloat(filterTime.Seconds())),
		fmt.Sprintf("SENS:APER %s", formatFloat(apertureTime.Seconds())),
	}
	for _, cmd := range cmds {
		if err := n.t.Command(cmd); err != nil {
			return wrap(n.name, "init", err)
		}
	}
	return nil
}

func (n *NRX) ReadPower() (float64, error) {
	resp, err := n.t.Query("READ?")
	if err != nil {
		return 0, wrap(n.name, "read power", err)
	}
	v, err := parseFloat(resp)
	return v, wrap(n.name, "read power", err)
}

func (n *NRX) Close() error {
	return wrap(n.name, "close", n.t.Close())
}
