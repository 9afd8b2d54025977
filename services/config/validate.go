package config

import (
	"fmt"
	"net/netip"
	"net/url"

	"pixelweather-go/services/wifi"
	"pixelweather-go/types"
	"pixelweather-go/x/mathx"
	"pixelweather-go/x/strx"
)

// Validate checks a normalised config. It does not mutate it.
func Validate(c *Config) error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || c.Server.URL == "" {
		return fmt.Errorf("server.url: %q is not a URL", c.Server.URL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url: unsupported scheme %q (use ws:// or wss://)", u.Scheme)
	}

	if len(c.Networks) == 0 {
		return fmt.Errorf("networks: at least one network is required")
	}
	seen := make(map[string]bool, len(c.Networks))
	for i, n := range c.Networks {
		switch {
		case n.SSID == "":
			return fmt.Errorf("networks[%d]: empty ssid", i)
		case !strx.FitsBytes(n.SSID, wifi.MaxSSIDLen):
			return fmt.Errorf("networks[%d]: ssid longer than %d bytes", i, wifi.MaxSSIDLen)
		case !strx.FitsBytes(n.PSK, wifi.MaxPSKLen):
			return fmt.Errorf("networks[%d]: psk longer than %d bytes", i, wifi.MaxPSKLen)
		case seen[n.SSID]:
			return fmt.Errorf("networks[%d]: duplicate ssid %q", i, n.SSID)
		}
		seen[n.SSID] = true
	}

	w := c.WiFi
	if len(w.CountryCode) != 2 {
		return fmt.Errorf("wifi.country_code: %q is not a two-letter code", w.CountryCode)
	}
	if _, ok := wifi.ParsePowerSavingMode(w.PowerSaving); !ok {
		return fmt.Errorf("wifi.power_saving: unknown mode %q", w.PowerSaving)
	}
	if !mathx.Between(w.TxPower, 8, 84) {
		return fmt.Errorf("wifi.tx_power: %d outside 8..84", w.TxPower)
	}
	if w.MinRSSI != nil && !mathx.Between(*w.MinRSSI, -100, 0) {
		return fmt.Errorf("wifi.min_rssi: %d outside -100..0", *w.MinRSSI)
	}
	if w.MaxCandidates < 1 {
		return fmt.Errorf("wifi.max_candidates: must be positive")
	}
	if w.Static != nil {
		if _, err := w.Static.parse(); err != nil {
			return fmt.Errorf("wifi.static: %w", err)
		}
	}

	if c.OTA.ChunkSize < 1 {
		return fmt.Errorf("ota.chunk_size: must be positive")
	}
	if _, err := types.ParseDec(c.Battery.Critical); err != nil {
		return fmt.Errorf("battery.critical: %w", err)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	return nil
}

func (s *StaticConfig) parse() (*wifi.StaticIP, error) {
	addr, err := netip.ParsePrefix(s.Address)
	if err != nil {
		return nil, err
	}
	out := &wifi.StaticIP{Address: addr}
	if s.Gateway != "" {
		if out.Gateway, err = netip.ParseAddr(s.Gateway); err != nil {
			return nil, err
		}
	}
	if s.DNS != "" {
		if out.DNS, err = netip.ParseAddr(s.DNS); err != nil {
			return nil, err
		}
	}
	return out, nil
}
