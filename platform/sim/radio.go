package sim

import (
	"errors"
	"net/netip"
	"slices"
	"time"

	"pixelweather-go/services/wifi"
	"pixelweather-go/types"
)

// AP is an access point in the simulated environment.
type AP struct {
	SSID string `yaml:"ssid"`
	RSSI int8   `yaml:"rssi"`
	Auth string `yaml:"auth"`
	// PSK is the key the AP accepts.
	PSK string `yaml:"psk"`
	// NoDHCP makes association succeed without a lease.
	NoDHCP bool `yaml:"no_dhcp"`
}

// Radio emulates the station interface.
type Radio struct {
	mac     [6]byte
	aps     []AP
	ip      wifi.IPConfig
	started bool
	scan    bool
	assoc   *AP
	lease   netip.Addr

	// Log records driver calls in order.
	Log []string
}

var _ wifi.Radio = (*Radio)(nil)

func NewRadio(mac [6]byte, aps []AP) *Radio {
	return &Radio{mac: mac, aps: aps}
}

var errNotStarted = errors.New("wifi not started")

func (r *Radio) MAC() ([6]byte, error) { return r.mac, nil }

func (r *Radio) ConfigureStation(ip wifi.IPConfig) error {
	r.ip = ip
	r.Log = append(r.Log, "configure")
	return nil
}

func (r *Radio) SetPowerSaving(m wifi.PowerSavingMode) error {
	r.Log = append(r.Log, "power_saving:"+m.String())
	return nil
}

func (r *Radio) SetTxPower(q int8) error {
	if q < 8 || q > 84 {
		return errors.New("tx power out of range")
	}
	return nil
}

func (r *Radio) Start() error { r.started = true; r.Log = append(r.Log, "start"); return nil }

func (r *Radio) SetCountryCode(code string) error {
	if len(code) != 2 {
		return errors.New("bad country code")
	}
	return nil
}

func (r *Radio) StartScan(time.Duration) error {
	if !r.started {
		return errNotStarted
	}
	r.scan = true
	return nil
}

func (r *Radio) ScanDone() (bool, error) { return r.scan, nil }

func (r *Radio) StopScan() error { r.scan = false; return nil }

// ScanResults returns the strongest APs first, as the driver does.
func (r *Radio) ScanResults(max int) ([]types.AccessPoint, error) {
	out := make([]types.AccessPoint, 0, len(r.aps))
	for i, ap := range r.aps {
		out = append(out, types.AccessPoint{
			SSID:    ap.SSID,
			BSSID:   [6]byte{0x02, 0, 0, 0, 0, byte(i + 1)},
			Channel: uint8(1 + 5*(i%3)),
			RSSI:    ap.RSSI,
			Auth:    types.ParseAuthMethod(ap.Auth),
		})
	}
	slices.SortStableFunc(out, func(a, b types.AccessPoint) int { return int(b.RSSI) - int(a.RSSI) })
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (r *Radio) Connect(ssid, psk string, _ types.AuthMethod) error {
	if !r.started {
		return errNotStarted
	}
	r.Log = append(r.Log, "connect:"+ssid)
	for i := range r.aps {
		if ap := &r.aps[i]; ap.SSID == ssid && ap.PSK == psk {
			r.assoc = ap
			if !ap.NoDHCP && r.ip.Static == nil {
				r.lease = netip.AddrFrom4([4]byte{192, 168, 4, 100 + byte(i)})
			}
			return nil
		}
	}
	return nil // association fails silently, as with a wrong key
}

func (r *Radio) Connected() (bool, error) { return r.assoc != nil, nil }

func (r *Radio) NetifUp() (bool, error) { return r.lease.IsValid(), nil }

func (r *Radio) IP() (netip.Addr, error) {
	if r.ip.Static != nil {
		return r.ip.Static.Address.Addr(), nil
	}
	if !r.lease.IsValid() {
		return netip.Addr{}, errors.New("no lease")
	}
	return r.lease, nil
}

func (r *Radio) Disconnect() error {
	r.assoc, r.lease = nil, netip.Addr{}
	r.Log = append(r.Log, "disconnect")
	return nil
}

func (r *Radio) Stop() error {
	r.started = false
	r.Log = append(r.Log, "stop")
	return nil
}

// Hostname is the DHCP hostname the firmware configured.
func (r *Radio) Hostname() string { return r.ip.Hostname }
