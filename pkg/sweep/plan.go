// Package sweep expands sweep bounds into ordered setpoints and chopper passes.
package sweep

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidRange is returned when sweep bounds or point counts fail
// validation. It is always wrapped with the offending values.
var ErrInvalidRange = errors.New("invalid range")

// Unit is the physical unit context of a Setpoint.
type Unit string

const (
	Hertz  Unit = "Hz"
	Ampere Unit = "A"
)

// Setpoint is a single commanded physical value for one sweep step.
type Setpoint struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (s Setpoint) String() string {
	return fmt.Sprintf("%g %s", s.Value, s.Unit)
}

// Plan is an ordered sequence of setpoints.
type Plan []Setpoint

// Values returns the raw scalar values of the plan.
func (p Plan) Values() []float64 {
	ret := make([]float64, len(p))
	for i, s := range p {
		ret[i] = s.Value
	}
	return ret
}

// ValidateRange checks that (from, to, points) describes a non-degenerate
// linear sweep.
func ValidateRange(from, to float64, points int) error {
	if points < 2 {
		return fmt.Errorf("%w: points must be at least 2, got %d", ErrInvalidRange, points)
	}
	if math.IsNaN(from) || math.IsNaN(to) || math.IsInf(from, 0) || math.IsInf(to, 0) {
		return fmt.Errorf("%w: bounds must be finite, got %g..%g", ErrInvalidRange, from, to)
	}
	if from == to {
		return fmt.Errorf("%w: from and to are both %g", ErrInvalidRange, from)
	}
	return nil
}

// BuildLinear returns points values evenly spaced between from and to,
// both ends included.
func BuildLinear(from, to float64, points int, unit Unit) (Plan, error) {
	if err := ValidateRange(from, to, points); err != nil {
		return nil, err
	}

	values := floats.Span(make([]float64, points), from, to)
	plan := make(Plan, points)
	for i, v := range values {
		plan[i] = Setpoint{Value: v, Unit: unit}
	}
	// Pin the ends so rounding never misses a bound.
	plan[0].Value = from
	plan[points-1].Value = to

	return plan, nil
}

// BuildBidirectional returns the ramp from -> to followed by the ramp
// to -> from, so both hysteresis branches are sampled symmetrically.
func BuildBidirectional(from, to float64, points int, unit Unit) (Plan, error) {
	up, err := BuildLinear(from, to, points, unit)
	if err != nil {
		return nil, err
	}
	down, err := BuildLinear(to, from, points, unit)
	if err != nil {
		return nil, err
	}
	return append(up, down...), nil
}
