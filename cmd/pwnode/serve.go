package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pixelweather-go/pwmp"
	"pixelweather-go/types"
	"pixelweather-go/x/logx"
)

var (
	serveAddr     string
	serveReleases string
	serveSettings string
	serveAllow    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host a pwmp server for simulated nodes",
	Long: `Serve the node protocol on ws://<addr>/pwmp, the URL of the sim board.

Firmware images are served from --releases (see "pwnode publish"). Node
settings come from --settings, a YAML file in the shape of the node
settings; without it nodes keep their own. Reports from nodes are logged.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:55300", "Listen address")
	serveCmd.Flags().StringVar(&serveReleases, "releases", "", "Release directory (empty: no updates)")
	serveCmd.Flags().StringVar(&serveSettings, "settings", "", "Node settings YAML file")
	serveCmd.Flags().StringSliceVar(&serveAllow, "allow", nil, "Only accept these node MACs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	toolLogging()
	log := logx.Module("serve")

	h, err := newServerHandler(serveReleases, serveSettings, serveAllow)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: serveAddr, Handler: h, ReadHeaderTimeout: 5 * time.Second}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("Listening", "url", "ws://"+serveAddr+"/pwmp")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newServerHandler(releases, settingsPath string, allow []string) (http.Handler, error) {
	var rel pwmp.Releases = pwmp.NewMemReleases()
	if releases != "" {
		rel = pwmp.DirReleases{Dir: releases}
	}
	b := pwmp.NewMemoryBackend(rel)
	if len(allow) > 0 {
		b.Allow(allow...)
	}
	if settingsPath != "" {
		s, err := loadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		b.SetDefaultSettings(&s)
	}

	mux := http.NewServeMux()
	mux.Handle("/pwmp", pwmp.NewServer(reportLogger{Backend: b}))
	return mux, nil
}

// loadSettings reads node settings over the defaults.
func loadSettings(path string) (types.Settings, error) {
	s := types.DefaultSettings()
	raw, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// reportLogger logs what nodes report before storing it.
type reportLogger struct {
	pwmp.Backend
}

func (r reportLogger) RecordMeasurements(mac string, m types.Measurements) error {
	logx.Module("serve").Info("Measurements", "mac", mac,
		"temperature", types.DecString(m.Temperature), "humidity", m.Humidity,
		"air_pressure", types.DecString(m.AirPressure))
	return r.Backend.RecordMeasurements(mac, m)
}

func (r reportLogger) RecordStats(mac string, s types.Stats) error {
	logx.Module("serve").Info("Stats", "mac", mac, "battery", types.DecString(s.Battery), "ssid", s.SSID, "rssi", s.RSSI)
	return r.Backend.RecordStats(mac, s)
}

func (r reportLogger) Notify(mac, text string) error {
	logx.Module("serve").Warn("Notification", "mac", mac, "text", text)
	return r.Backend.Notify(mac, text)
}

func (r reportLogger) RecordFirmwareReport(mac string, success bool) error {
	logx.Module("serve").Info("Firmware report", "mac", mac, "success", success)
	return r.Backend.RecordFirmwareReport(mac, success)
}
