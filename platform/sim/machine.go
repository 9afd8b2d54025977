package sim

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"pixelweather-go/storage"
	"pixelweather-go/storage/sqlitestore"
	"pixelweather-go/types"
)

// Files in a machine directory.
const (
	ScenarioFile = "scenario.yaml"
	flashFile    = "flash.cbor"
	stateFile    = "machine.cbor"
	nvsFile      = "nvs.db"
)

// Scenario describes the world around the simulated node.
type Scenario struct {
	MAC     string `yaml:"mac"`
	Console bool   `yaml:"console"`
	// BatteryMillivolts is ignored while Console is set.
	BatteryMillivolts uint16          `yaml:"battery_mv"`
	Sensor            *SensorScenario `yaml:"sensor"` // nil: empty bus
	Networks          []AP            `yaml:"networks"`
}

type SensorScenario struct {
	Temperature float64 `yaml:"temperature"` // °C
	Humidity    float64 `yaml:"humidity"`    // %RH
}

// DefaultScenario matches the "sim" board config.
func DefaultScenario() Scenario {
	return Scenario{
		MAC:               "24:6F:28:00:BE:EF",
		BatteryMillivolts: 3900,
		Sensor:            &SensorScenario{Temperature: 21.5, Humidity: 48},
		Networks: []AP{
			{SSID: "sim-home", RSSI: -58, Auth: "wpa2", PSK: "simulated"},
			{SSID: "neighbour", RSSI: -40, Auth: "wpa2", PSK: "other"},
		},
	}
}

// state is what survives between runs apart from flash and NVS.
type state struct {
	NextReset types.ResetReason `cbor:"1,keyasint"`
	Retained  []byte            `cbor:"2,keyasint,omitempty"`
	Boots     uint32            `cbor:"3,keyasint"`
}

// Machine is a simulated node backed by a directory.
type Machine struct {
	Dir      string
	BootID   string
	Scenario Scenario

	Flash  *Flash
	Power  *Power
	Radio  *Radio
	ADC    *ADC
	Sensor *HTU21D
	NVS    *sqlitestore.Store

	state state
}

// Init creates a machine directory whose first slot runs token.
func Init(dir, token string, sc Scenario) error {
	if _, err := os.Stat(filepath.Join(dir, flashFile)); err == nil {
		return fmt.Errorf("machine already initialised in %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ScenarioFile), raw, 0o644); err != nil {
		return err
	}
	if err := writeCBOR(filepath.Join(dir, flashFile), NewFlash(token)); err != nil {
		return err
	}
	return writeCBOR(filepath.Join(dir, stateFile), state{NextReset: types.ResetPowerOn})
}

// Open boots the machine in dir: the pending boot target becomes the
// running slot and the reset reason left by the last run is reported.
func Open(dir string) (*Machine, error) {
	m := &Machine{Dir: dir, BootID: uuid.NewString()}

	raw, err := os.ReadFile(filepath.Join(dir, ScenarioFile))
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, &m.Scenario); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	mac, err := parseMAC(m.Scenario.MAC)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	m.Flash = &Flash{}
	if err := readCBOR(filepath.Join(dir, flashFile), m.Flash); err != nil {
		return nil, err
	}
	m.Flash.ApplyBoot()
	if err := readCBOR(filepath.Join(dir, stateFile), &m.state); err != nil {
		return nil, err
	}
	m.state.Boots++

	m.Power = &Power{Reason: m.state.NextReset, Console: m.Scenario.Console}
	m.Flash.OnReboot = m.Power.Restart
	m.Radio = NewRadio(mac, m.Scenario.Networks)
	m.ADC = &ADC{BatteryMillivolts: m.Scenario.BatteryMillivolts}
	if s := m.Scenario.Sensor; s != nil {
		m.Sensor = &HTU21D{
			CentiCelsius:     int32(math.Round(s.Temperature * 100)),
			CentiRelHumidity: int32(math.Round(s.Humidity * 100)),
		}
	}

	m.NVS, err = OpenNVS(dir)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// OpenNVS opens the durable store of the machine in dir.
func OpenNVS(dir string) (*sqlitestore.Store, error) {
	return sqlitestore.Open(filepath.Join(dir, nvsFile), storage.Namespace)
}

// RetainedImage is the RTC memory left by the previous run.
func (m *Machine) RetainedImage() []byte { return m.state.Retained }

// Boots counts runs since Init.
func (m *Machine) Boots() uint32 { return m.state.Boots }

// Save persists flash and the retained image, and records the reset reason
// the next Open reports. A run that neither slept nor restarted is treated
// as a crash.
func (m *Machine) Save(retained *storage.Retained) error {
	if retained != nil {
		img, err := retained.Image()
		if err != nil {
			return err
		}
		m.state.Retained = img
	}
	m.state.NextReset = m.Power.Next
	if m.state.NextReset == types.ResetUnknown {
		m.state.NextReset = types.ResetPanic
	}
	if err := writeCBOR(filepath.Join(m.Dir, flashFile), m.Flash); err != nil {
		return err
	}
	return writeCBOR(filepath.Join(m.Dir, stateFile), m.state)
}

// Close releases the NVS database.
func (m *Machine) Close() error { return m.NVS.Close() }

// PowerCycle drops the retained memory so the next boot is cold.
func PowerCycle(dir string) error {
	var st state
	p := filepath.Join(dir, stateFile)
	if err := readCBOR(p, &st); err != nil {
		return err
	}
	st.NextReset = types.ResetPowerOn
	st.Retained = nil
	return writeCBOR(p, st)
}

// Peek loads flash and state without booting, for status displays.
func Peek(dir string) (*Flash, types.ResetReason, []byte, error) {
	f := &Flash{}
	if err := readCBOR(filepath.Join(dir, flashFile), f); err != nil {
		return nil, 0, nil, err
	}
	var st state
	if err := readCBOR(filepath.Join(dir, stateFile), &st); err != nil {
		return nil, 0, nil, err
	}
	return f, st.NextReset, st.Retained, nil
}

func parseMAC(s string) ([6]byte, error) {
	var mac [6]byte
	if _, err := fmt.Sscanf(s, "%02X:%02X:%02X:%02X:%02X:%02X",
		&mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5]); err != nil {
		return mac, fmt.Errorf("bad mac %q: %w", s, err)
	}
	return mac, nil
}

func writeCBOR(path string, v any) error {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readCBOR(path string, v any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s missing: run init first", filepath.Base(path))
	}
	if err != nil {
		return err
	}
	return cbor.Unmarshal(raw, v)
}
