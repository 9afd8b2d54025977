package types

import (
	"time"
)

// ---- Node settings (remotely configurable) ----

// Settings is the node configuration served by the remote server. The last
// good copy is persisted so a failed fetch keeps it.
type Settings struct {
	BatteryIgnore     bool   `json:"battery_ignore" cbor:"battery_ignore" yaml:"battery_ignore"`
	OTA               bool   `json:"ota" cbor:"ota" yaml:"ota"`
	SleepTime         uint16 `json:"sleep_time" cbor:"sleep_time" yaml:"sleep_time"` // seconds
	SBOP              bool   `json:"sbop" cbor:"sbop" yaml:"sbop"`
	MuteNotifications bool   `json:"mute_notifications" cbor:"mute_notifications" yaml:"mute_notifications"`
}

// DefaultSettings are used until the server has provided any.
func DefaultSettings() Settings {
	return Settings{
		BatteryIgnore:     false,
		OTA:               false,
		SleepTime:         60,
		SBOP:              true,
		MuteNotifications: false,
	}
}

// SleepDuration converts SleepTime to a duration.
func (s Settings) SleepDuration() time.Duration {
	return time.Duration(s.SleepTime) * time.Second
}

// ---- Telemetry ----

// Measurements is one environment sample. AirPressure is nil when the sensor
// model cannot measure it.
type Measurements struct {
	Temperature *Decimal
	Humidity    uint8 // 0..100 %RH
	AirPressure *Decimal
}

// Stats describes the node itself for the server.
type Stats struct {
	Battery *Decimal
	SSID    string
	RSSI    int8
}

// ---- Firmware updates ----

// UpdateStatus is the server's answer to an update check.
type UpdateStatus struct {
	Available bool
	Version   Version
}

// UpToDate is the status for no available update.
var UpToDate = UpdateStatus{}
