package sim

import (
	"errors"
	"time"

	"pixelweather-go/drivers/htu21d"
	"pixelweather-go/services/battery"
	"pixelweather-go/types"
	"pixelweather-go/x/mathx"
)

// ADC emulates the battery divider at 0 dB attenuation: 0..4095 raw maps
// onto 0..1000 mV at the pin.
type ADC struct {
	// BatteryMillivolts is the voltage at the top of the divider.
	BatteryMillivolts uint16
}

var _ battery.ADC = (*ADC)(nil)

const pinFullScale = 1000 // mV

func (a *ADC) pinMillivolts() uint16 {
	return uint16(uint64(a.BatteryMillivolts) * battery.R2 / (battery.R1 + battery.R2))
}

func (a *ADC) ReadRaw() (uint16, error) {
	return mathx.MapU16(a.pinMillivolts(), 0, pinFullScale, 0, battery.RawMax), nil
}

func (a *ADC) RawToMillivolts(raw uint16) (uint16, error) {
	return mathx.MapU16(raw, 0, battery.RawMax, 0, pinFullScale), nil
}

// HTU21D emulates the sensor on the I2C bus. A nil *HTU21D is an empty bus.
type HTU21D struct {
	CentiCelsius     int32
	CentiRelHumidity int32
}

var errNack = errors.New("i2c: nack")

// Tx implements drivers.I2C.
func (h *HTU21D) Tx(addr uint16, w, r []byte) error {
	if h == nil || addr != htu21d.Address {
		return errNack
	}
	if len(w) == 0 || len(r) == 0 {
		return nil
	}
	var raw uint16
	switch w[0] {
	case 0xE3:
		// Inverse of htu21d.TempFromRaw.
		raw = uint16((int64(h.CentiCelsius+4685)<<16 + 17571) / 17572)
	case 0xE5:
		raw = uint16((int64(h.CentiRelHumidity+600)<<16 + 12499) / 12500)
	case 0xFA:
		copy(r, []byte{0x53, 0, 0x49, 0, 0x4D, 0, 0x30, 0})
		return nil
	case 0xFC:
		b := []byte{0x00, 0x01, 0, 0x02, 0x03, 0}
		b[2], b[5] = htu21d.CRC8(b[0:2]), htu21d.CRC8(b[3:5])
		copy(r, b)
		return nil
	default:
		return errNack
	}
	raw &^= 0x3
	frame := []byte{byte(raw >> 8), byte(raw), 0}
	frame[2] = htu21d.CRC8(frame[:2])
	copy(r, frame)
	return nil
}

// Power records how cycles end and what reset the next boot sees.
type Power struct {
	Reason  types.ResetReason
	Console bool

	// Set by DeepSleep and Restart.
	Slept     time.Duration
	Restarted bool
	// Next is the reset reason the following boot will report.
	Next types.ResetReason
}

func (p *Power) ResetReason() types.ResetReason { return p.Reason }
func (p *Power) ConsoleAttached() bool          { return p.Console }

func (p *Power) DeepSleep(d time.Duration) {
	p.Slept = d
	p.Next = types.ResetDeepSleep
}

func (p *Power) Restart() {
	p.Restarted = true
	p.Next = types.ResetSoftware
}
