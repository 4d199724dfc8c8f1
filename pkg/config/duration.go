package config

import (
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Duration is a time.Duration written as a string such as "400ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return pkgerrors.Wrapf(err, "duration must be a string like \"10ms\", got %s", b)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return pkgerrors.Wrapf(err, "invalid duration %q", s)
	}
	*d = Duration(v)
	return nil
}
