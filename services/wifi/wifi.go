// Package wifi acquires network connectivity for one wake cycle: it brings
// the radio up, scans, ranks known access points and connects to the best
// one that answers, with every wait bounded by a timeout.
package wifi

import (
	"log/slog"
	"time"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
	"pixelweather-go/x/conv"
	"pixelweather-go/x/logx"
	"pixelweather-go/x/strx"
)

const (
	// HostnamePrefix is followed by the last two MAC bytes in hex.
	HostnamePrefix = "pixelweather-node-"

	// ChannelCount is the number of 2.4 GHz channels a full scan visits.
	ChannelCount = 13

	DefaultScanDwell      = 240 * time.Millisecond
	DefaultMaxCandidates  = 2
	DefaultMinRSSI        = -90
	DefaultConnectTimeout = 8 * time.Second
	DefaultPollInterval   = 20 * time.Millisecond
	DefaultTxPower        = 84
	DefaultCountryCode    = "SK"

	// Radio buffer sizes.
	MaxSSIDLen = 32
	MaxPSKLen  = 64

	fallbackDwell = 120 * time.Millisecond
)

// Credential is one entry of the static allow-list.
type Credential struct {
	SSID string
	PSK  string
}

// Config is the build-time network configuration. Zero fields take defaults,
// except MinRSSI where zero is a real threshold; use DefaultMinRSSI.
type Config struct {
	Networks       []Credential
	Static         *StaticIP
	CountryCode    string
	PowerSaving    PowerSavingMode
	TxPower        int8
	ScanDwell      time.Duration
	MaxCandidates  int
	MinRSSI        int8
	ConnectTimeout time.Duration
	PollInterval   time.Duration
}

func (c Config) normalize() Config {
	c.CountryCode = strx.Coalesce(c.CountryCode, DefaultCountryCode)
	c.TxPower = strx.Coalesce(c.TxPower, int8(DefaultTxPower))
	c.ScanDwell = strx.Coalesce(c.ScanDwell, DefaultScanDwell)
	c.MaxCandidates = strx.Coalesce(c.MaxCandidates, DefaultMaxCandidates)
	c.ConnectTimeout = strx.Coalesce(c.ConnectTimeout, DefaultConnectTimeout)
	c.PollInterval = strx.Coalesce(c.PollInterval, DefaultPollInterval)
	return c
}

// WiFi is an initialised radio. It is exclusively owned by the run cycle and
// must be closed.
type WiFi struct {
	radio  Radio
	cfg    Config
	mac    [6]byte
	closed bool
	log    *slog.Logger
}

// New brings the radio up in station mode. Any failing step aborts
// initialisation.
func New(radio Radio, cfg Config) (*WiFi, error) {
	cfg = cfg.normalize()
	w := &WiFi{radio: radio, cfg: cfg, log: logx.Module("wifi")}

	mac, err := radio.MAC()
	if err != nil {
		return nil, errcode.Wrap(errcode.Platform, "mac", err)
	}
	w.mac = mac

	ip := IPConfig{Static: cfg.Static}
	if cfg.Static == nil {
		ip.Hostname = Hostname(mac)
	}

	w.log.Debug("Configuring WiFi interface", "hostname", ip.Hostname, "static", cfg.Static != nil)
	steps := []struct {
		op string
		fn func() error
	}{
		{"configure_station", func() error { return radio.ConfigureStation(ip) }},
		{"set_power_saving", func() error { return radio.SetPowerSaving(cfg.PowerSaving) }},
		{"set_tx_power", func() error { return radio.SetTxPower(cfg.TxPower) }},
		{"start", radio.Start},
		{"set_country_code", func() error { return radio.SetCountryCode(cfg.CountryCode) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			// Best effort: leave the driver stopped.
			errcode.Report(radio.Stop(), "Failed to stop radio")
			return nil, errcode.Wrap(errcode.Platform, s.op, err)
		}
	}
	return w, nil
}

// MAC returns the station MAC address.
func (w *WiFi) MAC() [6]byte { return w.mac }

// Hostname derives the DHCP hostname from the last two MAC bytes.
func Hostname(mac [6]byte) string {
	buf := make([]byte, 0, len(HostnamePrefix)+4)
	buf = append(buf, HostnamePrefix...)
	return string(conv.AppendHex(buf, mac[4], mac[5]))
}

// Scan runs one active scan. The wait is bounded by a full sweep of all
// channels; a scan still running then is stopped and whatever was found is
// returned.
func (w *WiFi) Scan() ([]types.AccessPoint, error) {
	dwell := w.cfg.ScanDwell
	if dwell <= 0 {
		dwell = fallbackDwell
	}
	start := time.Now()
	if err := w.radio.StartScan(dwell); err != nil {
		return nil, errcode.Wrap(errcode.Platform, "start_scan", err)
	}

	err := w.await(w.radio.ScanDone, dwell*ChannelCount)
	switch {
	case err == nil:
		w.log.Debug("Scan finished early")
	case errcode.Of(err) == errcode.Timeout:
		w.log.Debug("Scan exceeded timeout, force-stopping")
		if err := w.radio.StopScan(); err != nil {
			return nil, errcode.Wrap(errcode.Platform, "stop_scan", err)
		}
	default:
		return nil, errcode.Wrap(errcode.Platform, "scan", err)
	}

	aps, err := w.radio.ScanResults(w.cfg.MaxCandidates)
	if err != nil {
		return nil, errcode.Wrap(errcode.Platform, "scan_results", err)
	}
	if len(aps) > w.cfg.MaxCandidates {
		aps = aps[:w.cfg.MaxCandidates]
	}
	w.log.Debug("Found networks", "count", len(aps), "took", time.Since(start).Round(time.Millisecond))
	return aps, nil
}

// Connect associates with c and, unless a static IP is configured, waits for
// a DHCP lease. Each phase is bounded by timeout.
func (w *WiFi) Connect(c Candidate, timeout time.Duration) error {
	if !strx.FitsBytes(c.AP.SSID, MaxSSIDLen) {
		return errcode.New(errcode.SsidTooLong, "connect", c.AP.SSID)
	}
	if !strx.FitsBytes(c.PSK, MaxPSKLen) {
		return errcode.New(errcode.PskTooLong, "connect", c.AP.SSID)
	}

	w.log.Debug("Starting connection to AP", "ssid", c.AP.SSID, "rssi", c.AP.RSSI)
	if err := w.radio.Connect(c.AP.SSID, c.PSK, c.AP.Auth); err != nil {
		return errcode.Wrap(errcode.WifiConnect, "connect", err)
	}

	w.log.Debug("Waiting for connection result")
	if err := w.await(w.radio.Connected, timeout); err != nil {
		return errcode.Wrap(errcode.WifiConnect, "associate", err)
	}

	if w.cfg.Static != nil {
		w.log.Debug("Static IP configuration detected, skipping wait for IP address")
		return nil
	}

	w.log.Debug("Waiting for IP address")
	if err := w.await(w.radio.NetifUp, timeout); err != nil {
		return errcode.Wrap(errcode.WifiConnect, "dhcp", err)
	}
	return nil
}

// Acquire scans, ranks and tries each candidate once, best first. It returns
// the access point it connected to. Running out of candidates is Offline.
func (w *WiFi) Acquire() (types.AccessPoint, error) {
	aps, err := w.Scan()
	if err != nil {
		return types.AccessPoint{}, err
	}
	ranked, err := Rank(aps, w.cfg.Networks, w.cfg.MinRSSI)
	if err != nil {
		w.log.Warn("No usable networks found")
		return types.AccessPoint{}, err
	}

	for _, c := range ranked {
		start := time.Now()
		err := w.Connect(c, w.cfg.ConnectTimeout)
		if err == nil {
			w.log.Debug("Connected", "ssid", c.AP.SSID, "took", time.Since(start).Round(time.Millisecond))
			if ip, err := w.radio.IP(); err == nil {
				w.log.Debug("IP", "addr", ip)
			}
			return c.AP, nil
		}
		if !errcode.Recoverable(err) {
			return types.AccessPoint{}, err
		}
		w.log.Error("Failed to connect", "ssid", c.AP.SSID, "err", err)
	}
	return types.AccessPoint{}, errcode.New(errcode.Offline, "acquire", "all candidates failed")
}

// Close disconnects if connected and stops the driver. Both are best effort.
func (w *WiFi) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.log.Debug("Deinitializing WiFi")

	if ok, err := w.radio.Connected(); err == nil && ok {
		errcode.Report(w.radio.Disconnect(), "Failed to disconnect")
	}
	errcode.Report(w.radio.Stop(), "Failed to disable")
}

// await polls cond until it reports true, fails, or timeout elapses.
func (w *WiFi) await(cond func() (bool, error), timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errcode.Timeout
		}
		time.Sleep(min(w.cfg.PollInterval, time.Until(deadline)))
	}
}
