package types

import (
	"github.com/cockroachdb/apd/v3"
)

// Decimal is a fixed-point reading (temperature, voltage, pressure).
type Decimal = apd.Decimal

var roundCtx = apd.Context{
	Precision:   16,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Traps:       apd.DefaultTraps,
	Rounding:    apd.RoundHalfUp,
}

// Dec returns coeff * 10^exp, e.g. Dec(322, -2) is 3.22.
func Dec(coeff int64, exp int32) *Decimal { return apd.New(coeff, exp) }

// DecFromFloat rounds f to the given number of decimal places.
func DecFromFloat(f float64, places int32) (*Decimal, error) {
	var raw Decimal
	if _, err := raw.SetFloat64(f); err != nil {
		return nil, err
	}
	out := new(Decimal)
	if _, err := roundCtx.Quantize(out, &raw, -places); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseDec parses a decimal literal such as "3.22".
func ParseDec(s string) (*Decimal, error) {
	d, _, err := apd.NewFromString(s)
	return d, err
}

// DecString renders d, or "-" for nil.
func DecString(d *Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// Round returns d rounded half up to the given number of decimal places.
func Round(d *Decimal, places int32) (*Decimal, error) {
	out := new(Decimal)
	if _, err := roundCtx.Quantize(out, d, -places); err != nil {
		return nil, err
	}
	return out, nil
}
