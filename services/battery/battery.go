// Package battery reads the supply voltage through the resistor divider on
// the node's ADC input.
package battery

import (
	"log/slog"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
	"pixelweather-go/x/logx"
	"pixelweather-go/x/mathx"
)

// Divider resistors in ohms (R1 high side, R2 to ground).
const (
	R1 = 1_000_000
	R2 = 300_000
)

const (
	// RawMax is the full-scale reading of the 12-bit ADC.
	RawMax = 4095

	DefaultSamples = 16

	// Readings outside [MinMillivolts, MaxMillivolts] are reported as
	// BatteryOutOfRange instead of being corrected.
	MinMillivolts = 2500
	MaxMillivolts = 4300
)

// CriticalVoltage is still above the minimum supply voltage of the MCU.
func CriticalVoltage() *types.Decimal { return types.Dec(322, -2) }

// ExternalPowerVoltage is reported when the node is powered over USB and the
// divider is not measured.
func ExternalPowerVoltage() *types.Decimal { return types.Dec(500, -2) }

// ADC is one calibrated oneshot channel.
type ADC interface {
	ReadRaw() (uint16, error)
	RawToMillivolts(raw uint16) (uint16, error)
}

// Battery measures the battery voltage.
type Battery struct {
	adc ADC
	log *slog.Logger
}

func New(adc ADC) *Battery {
	return &Battery{adc: adc, log: logx.Module("battery")}
}

// ReadVoltage averages samples raw reads and returns the battery voltage in
// volts with two decimal places.
func (b *Battery) ReadVoltage(samples uint16) (*types.Decimal, error) {
	mv, err := b.ReadMillivolts(samples)
	if err != nil {
		return nil, err
	}
	v, err := types.Round(types.Dec(int64(mv), -3), 2)
	if err != nil {
		return nil, errcode.Wrap(errcode.UnexpectedBufferFailure, "round", err)
	}
	return v, nil
}

// ReadMillivolts is ReadVoltage in integer millivolts.
func (b *Battery) ReadMillivolts(samples uint16) (uint32, error) {
	if samples == 0 {
		return 0, errcode.New(errcode.InvalidParams, "read_voltage", "zero samples")
	}
	raw, err := b.readRawAvg(samples)
	if err != nil {
		return 0, err
	}
	pin, err := b.adc.RawToMillivolts(raw)
	if err != nil {
		return 0, errcode.Wrap(errcode.ADC, "calibrate", err)
	}
	mv := uint32(mathx.RoundDiv(uint64(pin)*(R1+R2), R2))
	if !mathx.Between(mv, MinMillivolts, MaxMillivolts) {
		b.log.Warn("Abnormal battery voltage", "mv", mv, "pin_mv", pin)
		return 0, errcode.New(errcode.BatteryOutOfRange, "read_voltage", "abnormal voltage")
	}
	return mv, nil
}

func (b *Battery) readRawAvg(samples uint16) (uint16, error) {
	var sum uint32
	for i, n := uint16(0), samples; i < n; i++ {
		raw, err := b.adc.ReadRaw()
		if err != nil {
			return 0, errcode.Wrap(errcode.ADC, "read_raw", err)
		}
		sum += uint32(raw)
	}
	avg := mathx.RoundDiv(sum, uint32(samples))
	return uint16(mathx.Clamp(avg, 0, RawMax)), nil
}
