// Package htu21d provides a driver for the HTU21D and Si7021 temperature and
// humidity sensors. Measurements use the hold-master commands: the device
// stretches the clock until conversion finishes, so a single write followed
// by a repeated-start read returns the result.
//
// I2C.Tx MUST perform a write followed by a repeated-start read when both w
// and r are provided, without releasing the bus.
//
// Results are fixed-point: hundredths of °C and hundredths of %RH.
package htu21d

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x40

const (
	cmdTempHold     = 0xE3
	cmdHumidityHold = 0xE5
	cmdSoftReset    = 0xFE
)

// Electronic ID read commands (two bytes each).
var (
	cmdSerialA = [2]byte{0xFA, 0x0F}
	cmdSerialB = [2]byte{0xFC, 0xC9}
)

// Errors returned by the driver.
var (
	ErrTimeout = errors.New("htu21d: timeout")
	ErrCRC     = errors.New("htu21d: crc mismatch")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x40 if zero.
	Address uint16
	// RetryInterval separates attempts of a failed bus transaction. Default 50 ms.
	RetryInterval time.Duration
	// CommandTimeout bounds the retries of one command. Default 1 s.
	CommandTimeout time.Duration
	// ResetDelay is waited after a soft reset. Default 15 ms.
	ResetDelay time.Duration
}

// Device wraps an I2C connection to an HTU21D device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	buf [8]byte
}

// New creates a new HTU21D connection. It does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure applies cfg and soft-resets the device.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 50 * time.Millisecond
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = time.Second
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = 15 * time.Millisecond
	}
	d.cfg = cfg
	return d.Reset()
}

// Reset issues a soft reset and waits for the device to come back.
func (d *Device) Reset() error {
	if err := d.tx([]byte{cmdSoftReset}, nil); err != nil {
		return err
	}
	time.Sleep(d.cfg.ResetDelay)
	return nil
}

// CentiCelsius measures the temperature in hundredths of °C.
func (d *Device) CentiCelsius() (int32, error) {
	raw, err := d.measure(cmdTempHold)
	if err != nil {
		return 0, err
	}
	return TempFromRaw(raw), nil
}

// CentiRelHumidity measures relative humidity in hundredths of %RH. The
// result is not clamped and may fall slightly outside 0..10000.
func (d *Device) CentiRelHumidity() (int32, error) {
	raw, err := d.measure(cmdHumidityHold)
	if err != nil {
		return 0, err
	}
	return HumidityFromRaw(raw), nil
}

// Serial reads the 64-bit electronic ID, most significant byte first.
func (d *Device) Serial() ([8]byte, error) {
	var out [8]byte
	a := d.buf[:8]
	if err := d.tx(cmdSerialA[:], a); err != nil {
		return out, err
	}
	// SNA_3 crc SNA_2 crc SNA_1 crc SNA_0 crc
	out[0], out[1], out[2], out[3] = a[0], a[2], a[4], a[6]

	b := d.buf[:6]
	if err := d.tx(cmdSerialB[:], b); err != nil {
		return out, err
	}
	// SNB_3 SNB_2 crc SNB_1 SNB_0 crc
	if CRC8(b[0:2]) != b[2] || CRC8(b[3:5]) != b[5] {
		return out, ErrCRC
	}
	out[4], out[5], out[6], out[7] = b[0], b[1], b[3], b[4]
	return out, nil
}

func (d *Device) measure(cmd byte) (uint16, error) {
	r := d.buf[:3]
	if err := d.tx([]byte{cmd}, r); err != nil {
		return 0, err
	}
	if CRC8(r[:2]) != r[2] {
		return 0, ErrCRC
	}
	// The two low bits are status.
	return (uint16(r[0])<<8 | uint16(r[1])) &^ 0x3, nil
}

// tx retries a transaction until it succeeds or CommandTimeout elapses.
func (d *Device) tx(w, r []byte) error {
	if d.cfg.CommandTimeout == 0 {
		if err := d.Configure(Config{Address: d.Address}); err != nil {
			return err
		}
	}
	deadline := time.Now().Add(d.cfg.CommandTimeout)
	for {
		err := d.bus.Tx(d.Address, w, r)
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(d.cfg.RetryInterval)
	}
}

// TempFromRaw converts a raw reading to hundredths of °C:
// -46.85 + 175.72 * raw / 65536.
func TempFromRaw(raw uint16) int32 {
	return int32((int64(raw)*17572)>>16) - 4685
}

// HumidityFromRaw converts a raw reading to hundredths of %RH:
// -6 + 125 * raw / 65536.
func HumidityFromRaw(raw uint16) int32 {
	return int32((int64(raw)*12500)>>16) - 600
}

// CRC8 is the sensor checksum: polynomial x^8 + x^5 + x^4 + 1, init 0.
func CRC8(p []byte) byte {
	var crc byte
	for _, b := range p {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
