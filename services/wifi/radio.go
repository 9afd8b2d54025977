package wifi

import (
	"net/netip"
	"time"

	"pixelweather-go/types"
)

// Radio is the station-mode WiFi driver the node runs on.
type Radio interface {
	MAC() ([6]byte, error)
	// ConfigureStation selects station mode and the IP configuration of the
	// station interface.
	ConfigureStation(ip IPConfig) error
	SetPowerSaving(mode PowerSavingMode) error
	// SetTxPower sets the maximum transmit power in 0.25 dBm units.
	SetTxPower(quarterDBm int8) error
	Start() error
	SetCountryCode(code string) error

	// StartScan begins an active scan over all channels with the given
	// per-channel dwell time. It does not block.
	StartScan(dwell time.Duration) error
	ScanDone() (bool, error)
	StopScan() error
	// ScanResults returns at most max access points.
	ScanResults(max int) ([]types.AccessPoint, error)

	Connect(ssid, psk string, auth types.AuthMethod) error
	Connected() (bool, error)
	// NetifUp reports whether the station interface has an address.
	NetifUp() (bool, error)
	IP() (netip.Addr, error)
	Disconnect() error
	Stop() error
}

// PowerSavingMode is the modem sleep policy.
type PowerSavingMode uint8

const (
	PowerSavingOff PowerSavingMode = iota
	PowerSavingMinimum
	PowerSavingMaximum
)

func (m PowerSavingMode) String() string {
	switch m {
	case PowerSavingMinimum:
		return "minimum"
	case PowerSavingMaximum:
		return "maximum"
	}
	return "off"
}

// ParsePowerSavingMode accepts "off", "minimum" and "maximum".
func ParsePowerSavingMode(s string) (PowerSavingMode, bool) {
	for _, m := range []PowerSavingMode{PowerSavingOff, PowerSavingMinimum, PowerSavingMaximum} {
		if m.String() == s {
			return m, true
		}
	}
	return PowerSavingOff, false
}

// IPConfig is the station interface configuration. Exactly one of Hostname
// (DHCP) or Static is used.
type IPConfig struct {
	Hostname string
	Static   *StaticIP
}

// StaticIP is a fixed address configuration.
type StaticIP struct {
	Address netip.Prefix
	Gateway netip.Addr
	DNS     netip.Addr
}
