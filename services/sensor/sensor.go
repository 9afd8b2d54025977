// Package sensor selects and wraps the environment sensor fitted to the node.
package sensor

import (
	"log/slog"

	"tinygo.org/x/drivers"

	"pixelweather-go/drivers/aht20"
	"pixelweather-go/drivers/htu21d"
	"pixelweather-go/errcode"
	"pixelweather-go/types"
	"pixelweather-go/x/conv"
	"pixelweather-go/x/logx"
	"pixelweather-go/x/mathx"
)

// EnvironmentSensor is the capability set every sensor variant provides.
type EnvironmentSensor interface {
	Model() string
	Connected() (bool, error)
	ReadTemperature() (*types.Decimal, error)
	// ReadHumidity returns whole percent in 0..100.
	ReadHumidity() (uint8, error)
	// ReadAirPressure returns nil, nil on models without a pressure sensor.
	ReadAirPressure() (*types.Decimal, error)
	HWSerial() ([]byte, error)
}

// Measure reads all three quantities.
func Measure(s EnvironmentSensor) (types.Measurements, error) {
	var m types.Measurements
	var err error
	if m.Temperature, err = s.ReadTemperature(); err != nil {
		return m, err
	}
	if m.Humidity, err = s.ReadHumidity(); err != nil {
		return m, err
	}
	if m.AirPressure, err = s.ReadAirPressure(); err != nil {
		return m, err
	}
	return m, nil
}

// Probe scans addresses 1..127 and binds a driver to the first device that
// acknowledges. Only one sensor is expected on the bus.
func Probe(bus drivers.I2C) (EnvironmentSensor, error) {
	log := logx.Module("sensor")

	var found uint16
	for addr := uint16(1); addr < 128; addr++ {
		if bus.Tx(addr, nil, nil) == nil {
			log.Debug("Found device", "addr", hexAddr(addr))
			found = addr
			break
		}
	}

	switch found {
	case htu21d.Address:
		log.Debug("Detected HTU-compatible sensor")
		d := htu21d.New(bus)
		if err := d.Configure(htu21d.Config{}); err != nil {
			return nil, errcode.Wrap(errcode.Sensor, "htu21d_init", err)
		}
		return &htu{dev: &d, log: log}, nil
	case aht20.Address:
		log.Debug("Detected AHT20 sensor")
		d := aht20.New(bus)
		if err := d.Configure(aht20.Config{}); err != nil {
			return nil, errcode.Wrap(errcode.Sensor, "aht20_init", err)
		}
		return &aht{dev: &d}, nil
	case 0:
	default:
		log.Warn("Unrecognised device", "addr", hexAddr(found))
	}
	return nil, errcode.New(errcode.NoEnvSensor, "probe", "no supported sensor on bus")
}

func hexAddr(a uint16) string {
	return string(conv.AppendHex([]byte("0x"), byte(a)))
}

// centi converts a hundredths reading to a two-place Decimal.
func centi(v int32) *types.Decimal { return types.Dec(int64(v), -2) }

// percent floors a hundredths humidity reading to whole percent in 0..100.
func percent(v int32) uint8 {
	return uint8(mathx.Clamp(v/100, 0, 100))
}

type htu struct {
	dev *htu21d.Device
	log *slog.Logger
}

func (s *htu) Model() string { return "htu21d" }

func (s *htu) Connected() (bool, error) {
	if err := s.dev.Reset(); err != nil {
		return false, errcode.Wrap(errcode.Sensor, "reset", err)
	}
	return true, nil
}

func (s *htu) ReadTemperature() (*types.Decimal, error) {
	v, err := s.dev.CentiCelsius()
	if err != nil {
		return nil, errcode.Wrap(errcode.Sensor, "temperature", err)
	}
	return centi(v), nil
}

func (s *htu) ReadHumidity() (uint8, error) {
	v, err := s.dev.CentiRelHumidity()
	if err != nil {
		return 0, errcode.Wrap(errcode.Sensor, "humidity", err)
	}
	return percent(v), nil
}

func (s *htu) ReadAirPressure() (*types.Decimal, error) {
	s.log.Debug("Air pressure is not supported")
	return nil, nil
}

func (s *htu) HWSerial() ([]byte, error) {
	sn, err := s.dev.Serial()
	if err != nil {
		return nil, errcode.Wrap(errcode.Sensor, "serial", err)
	}
	return sn[:], nil
}

type aht struct {
	dev *aht20.Device
}

func (s *aht) Model() string { return "aht20" }

func (s *aht) Connected() (bool, error) {
	st, err := s.dev.Status()
	if err != nil {
		return false, errcode.Wrap(errcode.Sensor, "status", err)
	}
	return st != 0xFF, nil
}

func (s *aht) ReadTemperature() (*types.Decimal, error) {
	v, err := s.dev.CentiCelsius()
	if err != nil {
		return nil, errcode.Wrap(errcode.Sensor, "temperature", err)
	}
	return centi(v), nil
}

// ReadHumidity reuses the sample collected with the last temperature read
// when there is one.
func (s *aht) ReadHumidity() (uint8, error) {
	if last := s.dev.Last(); last != (aht20.Sample{}) {
		return percent(last.CentiRelHumidity()), nil
	}
	v, err := s.dev.CentiRelHumidity()
	if err != nil {
		return 0, errcode.Wrap(errcode.Sensor, "humidity", err)
	}
	return percent(v), nil
}

func (s *aht) ReadAirPressure() (*types.Decimal, error) { return nil, nil }

func (s *aht) HWSerial() ([]byte, error) {
	return nil, errcode.New(errcode.Unsupported, "serial", "aht20 has no electronic id")
}
