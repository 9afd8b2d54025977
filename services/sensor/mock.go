package sensor

import "pixelweather-go/types"

// Mock is a fixed-value sensor for boards without one fitted and for tests.
type Mock struct {
	Temperature *types.Decimal
	Humidity    uint8
	AirPressure *types.Decimal
	Err         error
}

// NewMock returns the values the bench firmware reported.
func NewMock() *Mock {
	return &Mock{Temperature: types.Dec(0, 0), Humidity: 69, AirPressure: types.Dec(321, 0)}
}

func (m *Mock) Model() string            { return "mock" }
func (m *Mock) Connected() (bool, error) { return m.Err == nil, m.Err }
func (m *Mock) HWSerial() ([]byte, error) {
	return []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, nil
}

func (m *Mock) ReadTemperature() (*types.Decimal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Temperature, nil
}

func (m *Mock) ReadHumidity() (uint8, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Humidity, nil
}

func (m *Mock) ReadAirPressure() (*types.Decimal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.AirPressure, nil
}
