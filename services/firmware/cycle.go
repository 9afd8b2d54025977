package firmware

import (
	"context"
	"fmt"

	"pixelweather-go/errcode"
	"pixelweather-go/platform"
	"pixelweather-go/pwmp"
	"pixelweather-go/services/battery"
	"pixelweather-go/services/sensor"
	"pixelweather-go/services/wifi"
	"pixelweather-go/types"
)

// cycle runs steps two to seven. terminal is set for the sBOP branch, which
// ends the cycle without an error.
func (n *Node) cycle(ctx context.Context) (platform.Outcome, bool, error) {
	n.log.Debug("Initializing WiFi")
	w, err := wifi.New(n.deps.Radio, n.cfg.ToWiFi())
	if err != nil {
		return platform.Outcome{}, false, err
	}
	defer w.Close()

	ap, err := w.Acquire()
	if err != nil {
		return platform.Outcome{}, false, err
	}

	dctx, cancel := context.WithTimeout(ctx, n.cfg.Server.Timeout)
	client, err := n.deps.Dial(dctx, n.cfg.Server.URL, w.MAC())
	cancel()
	if err != nil {
		return platform.Outcome{}, false, err
	}
	defer func() { errcode.Report(client.Close(), "Failed to close server session") }()

	s := session{Node: n, ctx: ctx, client: client}
	s.readSettings()

	voltage, err := s.readBattery()
	if err != nil {
		return platform.Outcome{}, false, err
	}
	if s.sbopTriggered(voltage) {
		n.log.Warn("Battery voltage too low, activating sBOP", "voltage", voltage)
		s.notify(msgSBOP)
		return platform.HaltOutcome(), true, nil
	}

	env, err := sensor.Probe(n.deps.I2C)
	if err != nil {
		return platform.Outcome{}, false, err
	}
	m, err := sensor.Measure(env)
	if err != nil {
		return platform.Outcome{}, false, err
	}
	n.log.Info("Measured", "temperature", types.DecString(m.Temperature), "humidity", m.Humidity,
		"air_pressure", types.DecString(m.AirPressure))

	n.log.Debug("Posting measurements")
	if err := s.do(func(ctx context.Context) error { return client.PostMeasurements(ctx, m) }); err != nil {
		return platform.Outcome{}, false, err
	}
	n.log.Debug("Posting stats")
	stats := types.Stats{Battery: voltage, SSID: ap.SSID, RSSI: ap.RSSI}
	if err := s.do(func(ctx context.Context) error { return client.PostStats(ctx, stats) }); err != nil {
		return platform.Outcome{}, false, err
	}

	if err := s.reportLastError(); err != nil {
		return platform.Outcome{}, false, err
	}
	if err := s.reportUpdate(); err != nil {
		return platform.Outcome{}, false, err
	}
	if err := s.checkUpdate(); err != nil {
		return platform.Outcome{}, false, err
	}
	return platform.Outcome{}, false, nil
}

// session is the part of a cycle that talks to the server.
type session struct {
	*Node
	ctx    context.Context
	client pwmp.Client
}

// do runs one request bounded by the server timeout.
func (s *session) do(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Server.Timeout)
	defer cancel()
	return fn(ctx)
}

func (s *session) sendNotification(text string) error {
	return s.do(func(ctx context.Context) error { return s.client.SendNotification(ctx, text) })
}

// readSettings refreshes the settings. An empty or failed response keeps the
// previous ones.
func (s *session) readSettings() {
	s.log.Debug("Reading settings")
	var got *types.Settings
	err := s.do(func(ctx context.Context) (err error) {
		got, err = s.client.GetSettings(ctx)
		return err
	})
	switch {
	case err != nil:
		s.log.Warn("Failed to read settings, keeping previous", "err", err)
		return
	case got == nil:
		s.log.Warn("Got empty node settings, keeping previous")
		return
	}
	s.settings = *got
	if err := s.nvs.StoreSettings(*got); err != nil {
		errcode.Report(err, "Failed to persist settings")
	}
	s.log.Debug("Settings updated", "sleep", s.settings.SleepDuration(), "ota", s.settings.OTA)
}

func (s *session) readBattery() (*types.Decimal, error) {
	if s.deps.Power.ConsoleAttached() {
		s.log.Debug("Skipping battery voltage measurement due to USB power")
		return battery.ExternalPowerVoltage(), nil
	}
	v, err := battery.New(s.deps.ADC).ReadVoltage(s.cfg.Battery.Samples)
	if err != nil {
		return nil, err
	}
	s.log.Info("Battery", "voltage", v)
	return v, nil
}

// sbopTriggered applies the safe battery operation policy. BatteryIgnore
// overrides it.
func (s *session) sbopTriggered(v *types.Decimal) bool {
	if !s.settings.SBOP || s.settings.BatteryIgnore {
		return false
	}
	return v.Cmp(s.cfg.CriticalVoltage()) <= 0
}

// notify sends text unless notifications are muted. Failures are logged.
func (s *session) notify(text string) {
	if s.settings.MuteNotifications {
		s.log.Debug("Notification muted", "text", text)
		return
	}
	errcode.Report(s.sendNotification(text), "Failed to send notification")
}

// reportLastError delivers the error that ended a previous cycle. The record
// is cleared only once it has been delivered or when notifications are
// muted.
func (s *session) reportLastError() error {
	rec, err := s.nvs.LastError()
	if err != nil {
		return err
	}
	if rec == nil {
		s.log.Debug("No error detected from previous run")
		return nil
	}
	s.log.Info("Reporting error from previous run", "code", rec.Code)
	if !s.settings.MuteNotifications {
		if err := s.sendNotification(msgPrevError + rec.Message); err != nil {
			errcode.Report(err, "Failed to report previous error")
			return nil
		}
	}
	return s.nvs.ClearLastError()
}

// reportUpdate tells the server how the last update went. It is sent even
// when notifications are muted.
func (s *session) reportUpdate() error {
	needed, err := s.engine.ReportNeeded()
	if err != nil {
		return err
	}
	if !needed {
		s.log.Debug("No update report needed")
		return nil
	}
	rolledBack, err := s.engine.RollbackDetected()
	if err != nil {
		return err
	}

	var v types.Version
	outcome := "succeeded"
	if rolledBack {
		outcome = "failed"
		prev, ok, err := s.engine.PreviousVersion()
		if err != nil {
			return err
		}
		if !ok {
			return errcode.New(errcode.MissingPartitionMetadata, "report_update", "no invalid slot after rollback")
		}
		v = prev
	} else if v, err = s.engine.CurrentVersion(); err != nil {
		return err
	}

	s.log.Info("Reporting firmware update", "success", !rolledBack, "version", v)
	if err := s.sendNotification(fmt.Sprintf(msgUpdateFmt, v, outcome)); err != nil {
		return err
	}
	if err := s.do(func(ctx context.Context) error { return s.client.ReportFirmware(ctx, !rolledBack) }); err != nil {
		return err
	}
	s.engine.MarkReported()
	return nil
}

// checkUpdate installs an available update. A failed download is cancelled
// and does not fail the cycle; a failed commit does.
func (s *session) checkUpdate() error {
	if !s.settings.OTA {
		s.log.Debug("Updates disabled")
		return nil
	}
	current, err := s.engine.CurrentVersion()
	if err != nil {
		return err
	}
	s.log.Debug("Checking for updates", "current", current)
	var st types.UpdateStatus
	err = s.do(func(ctx context.Context) (err error) {
		st, err = s.client.CheckOSUpdate(ctx, current)
		return err
	})
	if err != nil {
		return err
	}
	if !st.Available {
		s.log.Info("No update available")
		return nil
	}
	s.log.Info("Update available", "version", st.Version)

	u, err := s.engine.BeginUpdate()
	if err != nil {
		return err
	}
	defer func() { errcode.Report(u.Close(), "Failed to abort update") }()

	for i := 1; ; i++ {
		var chunk []byte
		err := s.do(func(ctx context.Context) (err error) {
			chunk, err = s.client.NextUpdateChunk(ctx, s.cfg.OTA.ChunkSize)
			return err
		})
		if err != nil {
			s.log.Error("Update download failed", "chunk", i, "err", err)
			errcode.Report(u.Cancel(), "Failed to cancel update")
			return nil
		}
		if chunk == nil {
			break
		}
		if i%reportInterval == 0 {
			s.log.Debug("Writing OTA update chunk", "n", i)
		}
		if _, err := u.Write(chunk); err != nil {
			s.log.Error("Update write failed", "chunk", i, "err", err)
			errcode.Report(u.Cancel(), "Failed to cancel update")
			return nil
		}
	}

	if err := u.Commit(); err != nil {
		return err
	}
	s.log.Info("Update installed successfully", "version", st.Version, "bytes", u.Written())
	return nil
}
