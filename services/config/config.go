// Package config holds the build-time board configuration: the credential
// table, network tuning, server address and limits that are compiled into a
// node image. Boards are looked up by name in the embedded table; the
// simulator may load a file instead.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pixelweather-go/services/ota"
	"pixelweather-go/services/wifi"
	"pixelweather-go/types"
	"pixelweather-go/x/strx"
)

const (
	DefaultBatterySamples = 16
	DefaultChunkSize      = 1024
	DefaultCritical       = "3.22"
	DefaultLogLevel       = "debug"
)

// EmbeddedConfigLookup allows overriding how board configs are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

// Config is one board's configuration.
type Config struct {
	Board    string          `yaml:"board"`
	Server   ServerConfig    `yaml:"server"`
	Networks []NetworkConfig `yaml:"networks"`
	WiFi     WiFiConfig      `yaml:"wifi"`
	OTA      OTAConfig       `yaml:"ota"`
	Battery  BatteryConfig   `yaml:"battery"`
	Log      LogConfig       `yaml:"log"`
	// Settings are used until the server has provided any.
	Settings *types.Settings `yaml:"settings"`
}

type ServerConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type NetworkConfig struct {
	SSID string `yaml:"ssid"`
	PSK  string `yaml:"psk"`
}

type WiFiConfig struct {
	Static         *StaticConfig `yaml:"static"`
	CountryCode    string        `yaml:"country_code"`
	PowerSaving    string        `yaml:"power_saving"`
	TxPower        int8          `yaml:"tx_power"`
	ScanDwell      time.Duration `yaml:"scan_dwell"`
	MaxCandidates  int           `yaml:"max_candidates"`
	MinRSSI        *int8         `yaml:"min_rssi"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type StaticConfig struct {
	Address string `yaml:"address"` // CIDR
	Gateway string `yaml:"gateway"`
	DNS     string `yaml:"dns"`
}

type OTAConfig struct {
	MaxFailures uint8 `yaml:"max_failures"`
	ChunkSize   int   `yaml:"chunk_size"`
}

type BatteryConfig struct {
	Samples  uint16 `yaml:"samples"`
	Critical string `yaml:"critical"` // volts
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load resolves an embedded board config.
func Load(board string) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(board)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for board: " + board)
	}
	return Parse(raw)
}

// LoadFile reads a config from disk.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes, normalises and validates raw YAML. Unknown keys are errors.
func Parse(raw []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	normalize(&c)
	if err := Validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalize fills defaults in place.
func normalize(c *Config) {
	c.Server.Timeout = strx.Coalesce(c.Server.Timeout, 10*time.Second)

	w := &c.WiFi
	w.CountryCode = strings.ToUpper(strx.Coalesce(w.CountryCode, wifi.DefaultCountryCode))
	w.PowerSaving = strx.Coalesce(w.PowerSaving, wifi.PowerSavingMinimum.String())
	w.TxPower = strx.Coalesce(w.TxPower, int8(wifi.DefaultTxPower))
	w.ScanDwell = strx.Coalesce(w.ScanDwell, wifi.DefaultScanDwell)
	w.MaxCandidates = strx.Coalesce(w.MaxCandidates, wifi.DefaultMaxCandidates)
	w.ConnectTimeout = strx.Coalesce(w.ConnectTimeout, wifi.DefaultConnectTimeout)
	if w.MinRSSI == nil {
		v := int8(wifi.DefaultMinRSSI)
		w.MinRSSI = &v
	}

	c.OTA.MaxFailures = strx.Coalesce(c.OTA.MaxFailures, uint8(ota.DefaultMaxFailures))
	c.OTA.ChunkSize = strx.Coalesce(c.OTA.ChunkSize, DefaultChunkSize)
	c.Battery.Samples = strx.Coalesce(c.Battery.Samples, uint16(DefaultBatterySamples))
	c.Battery.Critical = strx.Coalesce(c.Battery.Critical, DefaultCritical)
	c.Log.Level = strings.ToLower(strx.Coalesce(c.Log.Level, DefaultLogLevel))
	if c.Settings == nil {
		s := types.DefaultSettings()
		c.Settings = &s
	}
}
