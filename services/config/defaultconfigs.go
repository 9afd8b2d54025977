package config

// Embedded board configurations, keyed by board name.

const cfgXiaoS3 = `
board: xiao-s3
server:
  url: ws://pixelweather.local:55300/pwmp
networks:
  - ssid: PixelWeather
    psk: changeme-before-flashing
wifi:
  country_code: SK
  power_saving: minimum
  tx_power: 84
  scan_dwell: 240ms
  max_candidates: 2
  min_rssi: -90
  connect_timeout: 8s
ota:
  max_failures: 3
  chunk_size: 1024
battery:
  samples: 16
  critical: "3.22"
log:
  level: info
`

const cfgSim = `
board: sim
server:
  url: ws://127.0.0.1:55300/pwmp
  timeout: 5s
networks:
  - ssid: sim-home
    psk: simulated
  - ssid: sim-backup
    psk: simulated-too
wifi:
  scan_dwell: 20ms
  connect_timeout: 500ms
log:
  level: debug
`

var embeddedConfigs = map[string][]byte{
	"xiao-s3": []byte(cfgXiaoS3),
	"sim":     []byte(cfgSim),
}
