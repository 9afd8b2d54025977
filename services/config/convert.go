package config

import (
	"log/slog"

	"pixelweather-go/services/ota"
	"pixelweather-go/services/wifi"
	"pixelweather-go/types"
)

// ToWiFi converts the network section for the wifi service.
func (c *Config) ToWiFi() wifi.Config {
	w := c.WiFi
	out := wifi.Config{
		CountryCode:    w.CountryCode,
		TxPower:        w.TxPower,
		ScanDwell:      w.ScanDwell,
		MaxCandidates:  w.MaxCandidates,
		MinRSSI:        *w.MinRSSI,
		ConnectTimeout: w.ConnectTimeout,
	}
	out.PowerSaving, _ = wifi.ParsePowerSavingMode(w.PowerSaving)
	if w.Static != nil {
		out.Static, _ = w.Static.parse()
	}
	for _, n := range c.Networks {
		out.Networks = append(out.Networks, wifi.Credential{SSID: n.SSID, PSK: n.PSK})
	}
	return out
}

func (c *Config) ToOTA() ota.Config {
	return ota.Config{MaxFailures: c.OTA.MaxFailures}
}

// CriticalVoltage is the sBOP threshold.
func (c *Config) CriticalVoltage() *types.Decimal {
	d, _ := types.ParseDec(c.Battery.Critical)
	return d
}

// LogLevel maps log.level onto slog. ok is false for "off".
func (c *Config) LogLevel() (slog.Level, bool) {
	switch c.Log.Level {
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "off":
		return 0, false
	}
	return slog.LevelDebug, true
}
