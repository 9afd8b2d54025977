// Package aht20 provides a driver for the AHT20 temperature/humidity sensor.
// It exposes a two-phase measurement API:
//
//	d.Trigger()              // start a measurement (fast)
//	err := d.Collect(&s)     // fetch when ready; returns ErrNotReady while busy
//
// d.Read() performs trigger + bounded polling until ready.
//
// I2C.Tx MUST perform a write followed by a repeated-start read when both w
// and r are provided, without releasing the bus.
//
// Results are fixed-point: hundredths of °C and hundredths of %RH, matching
// the htu21d package so callers can treat both sensors alike.
package aht20

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address.
const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

// Errors returned by the driver.
var (
	ErrTimeout  = errors.New("aht20: timeout")
	ErrNotReady = errors.New("aht20: not ready")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x38 if zero.
	Address uint16
	// PollInterval is used by Read() between Collect() attempts. Default 15 ms.
	PollInterval time.Duration
	// CollectTimeout bounds the total wait in Read(). Default 250 ms.
	CollectTimeout time.Duration
	// InitDelay is waited after the calibration command. Default 10 ms.
	InitDelay time.Duration
}

// Device wraps an I2C connection to an AHT20 device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg  Config
	buf  [7]byte
	last Sample
}

// New creates a new AHT20 connection. The I2C bus must already be configured.
// It does not touch the device.
func New(bus drivers.I2C) Device {
	return Device{bus: bus, Address: Address}
}

// Configure applies cfg and calibrates the device if it reports that it is
// not calibrated yet.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	if cfg.InitDelay <= 0 {
		cfg.InitDelay = 10 * time.Millisecond
	}
	d.cfg = cfg

	st, err := d.Status()
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := d.bus.Tx(d.Address, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	time.Sleep(d.cfg.InitDelay)
	return nil
}

// Reset issues a soft reset. Give the device ~20ms afterwards before using.
func (d *Device) Reset() error {
	return d.bus.Tx(d.Address, []byte{cmdSoftReset}, nil)
}

// Status reads the status byte.
func (d *Device) Status() (byte, error) {
	data := d.buf[:1]
	if err := d.bus.Tx(d.Address, []byte{cmdStatus}, data); err != nil {
		return 0, err
	}
	return data[0], nil
}

// Trigger starts a measurement without blocking.
func (d *Device) Trigger() error {
	if d.cfg.PollInterval == 0 {
		if err := d.Configure(Config{Address: d.Address}); err != nil {
			return err
		}
	}
	return d.bus.Tx(d.Address, []byte{cmdTrigger, 0x33, 0x00}, nil)
}

// Collect reads one measurement. ErrNotReady is returned while the device is
// busy; bus errors are returned as-is.
func (d *Device) Collect(out *Sample) error {
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, nil, data); err != nil {
		return err
	}
	if data[0]&statusCalibrated == 0 || data[0]&statusBusy != 0 {
		return ErrNotReady
	}
	s := Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}
	d.last = s
	if out != nil {
		*out = s
	}
	return nil
}

// Read performs Trigger followed by bounded polling until Collect succeeds
// or the timeout elapses.
func (d *Device) Read() (Sample, error) {
	if err := d.Trigger(); err != nil {
		return Sample{}, err
	}
	deadline := time.Now().Add(d.cfg.CollectTimeout)
	for {
		var s Sample
		err := d.Collect(&s)
		switch err {
		case nil:
			return s, nil
		case ErrNotReady:
			if time.Now().After(deadline) {
				return Sample{}, ErrTimeout
			}
			time.Sleep(d.cfg.PollInterval)
		default:
			return Sample{}, err
		}
	}
}

// CentiCelsius measures the temperature in hundredths of °C.
func (d *Device) CentiCelsius() (int32, error) {
	s, err := d.Read()
	if err != nil {
		return 0, err
	}
	return s.CentiCelsius(), nil
}

// CentiRelHumidity measures relative humidity in hundredths of %RH.
func (d *Device) CentiRelHumidity() (int32, error) {
	s, err := d.Read()
	if err != nil {
		return 0, err
	}
	return s.CentiRelHumidity(), nil
}

// Last returns the most recently collected sample.
func (d *Device) Last() Sample { return d.last }

// Sample holds one raw 20-bit reading pair.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

// CentiRelHumidity is raw * 100% / 2^20 in hundredths.
func (s Sample) CentiRelHumidity() int32 {
	return int32((int64(s.RawHumidity) * 10000) >> 20)
}

// CentiCelsius is raw * 200 / 2^20 - 50 in hundredths.
func (s Sample) CentiCelsius() int32 {
	return int32((int64(s.RawTemp)*20000)>>20) - 5000
}
