// Package firmware runs one wake cycle of a node: boot checks, network
// acquisition, settings refresh, measurements, reports, updates and the
// choice of how to sleep. A cycle never loops back; anything that needs a
// fresh start ends in a reboot.
package firmware

import (
	"context"
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"pixelweather-go/errcode"
	"pixelweather-go/platform"
	"pixelweather-go/pwmp"
	"pixelweather-go/services/battery"
	"pixelweather-go/services/config"
	"pixelweather-go/services/ota"
	"pixelweather-go/services/wifi"
	"pixelweather-go/storage"
	"pixelweather-go/types"
	"pixelweather-go/x/logx"
)

// Notification texts.
const (
	msgSBOP        = "Battery voltage too low, activating sBOP"
	msgPrevError   = "An error has been detected during a previous run: "
	msgUpdateFmt   = "Update to PWOS %s has %s"
	reportInterval = 128 // chunks between progress logs
)

// DialFunc opens a session with the server.
type DialFunc func(ctx context.Context, url string, mac [6]byte) (pwmp.Client, error)

// Dial is the DialFunc for the websocket transport.
func Dial(ctx context.Context, url string, mac [6]byte) (pwmp.Client, error) {
	c, err := pwmp.Dial(ctx, url, mac)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Deps are the board resources a cycle runs on. All are required.
type Deps struct {
	Config  *config.Config
	Power   platform.Power
	Flash   ota.Flash
	Radio   wifi.Radio
	ADC     battery.ADC
	I2C     drivers.I2C
	Durable storage.DurableStore
	// RetainedImage is the retained memory that survived the last reset,
	// nil if the platform has none.
	RetainedImage []byte
	Dial          DialFunc
}

// Node is one boot of the firmware.
type Node struct {
	deps     Deps
	cfg      *config.Config
	retained *storage.Retained
	nvs      *storage.NVS
	engine   *ota.Engine
	settings types.Settings
	log      *slog.Logger
}

// New performs the boot step: it reads the reset cause, initialises the
// retained state (cold boots reset it) and constructs the OTA engine.
func New(d Deps) (*Node, error) {
	if d.Config == nil || d.Power == nil || d.Flash == nil || d.Radio == nil ||
		d.ADC == nil || d.I2C == nil || d.Durable == nil || d.Dial == nil {
		return nil, errcode.New(errcode.UnexpectedNull, "firmware_new", "missing dependency")
	}
	log := logx.Module("firmware")

	reason := d.Power.ResetReason()
	if reason.Abnormal() {
		log.Warn("Abnormal reset detected", "reason", reason)
	} else {
		log.Debug("Reset", "reason", reason)
	}

	retained, err := storage.InitRetained(reason, d.RetainedImage)
	if err != nil {
		return nil, err
	}
	if retained.ColdBoot() {
		log.Debug("Cold boot, retained state reset")
	}

	return &Node{
		deps:     d,
		cfg:      d.Config,
		retained: retained,
		nvs:      storage.NewNVS(d.Durable),
		engine:   ota.New(d.Flash, retained, d.Config.ToOTA()),
		settings: *d.Config.Settings,
		log:      log,
	}, nil
}

// Retained is the state to carry over into the next wake.
func (n *Node) Retained() *storage.Retained { return n.retained }

// Engine exposes the OTA engine of this boot.
func (n *Node) Engine() *ota.Engine { return n.engine }

// Settings are the node settings in effect for this cycle.
func (n *Node) Settings() types.Settings { return n.settings }

// Run executes the cycle and returns how it ends. It never panics on a
// failed step: recoverable errors are recorded for the next cycle, anything
// else halts the node.
func (n *Node) Run(ctx context.Context) platform.Outcome {
	start := time.Now()

	if out, done, err := n.boot(); err != nil {
		return n.finish(err)
	} else if done {
		return out
	}

	out, terminal, err := n.cycle(ctx)
	n.log.Info("Tasks completed", "took", time.Since(start).Round(time.Millisecond))
	if terminal {
		return out
	}
	return n.finish(err)
}

// boot loads persisted settings and rolls back if the running slot has
// failed too often. done is set when the cycle must end here.
func (n *Node) boot() (platform.Outcome, bool, error) {
	if s, ok, err := n.nvs.Settings(); err != nil {
		errcode.Report(err, "Failed to read persisted settings")
	} else if ok {
		n.settings = s
	}

	state, err := n.engine.State()
	if err != nil {
		return platform.Outcome{}, false, err
	}
	n.log.Debug("Firmware state", "state", state)
	if state == ota.Confirmed {
		return platform.Outcome{}, false, nil
	}

	n.log.Warn("Running unverified firmware", "failures", n.retained.Failures(), "max", n.engine.MaxFailures())
	switch err := n.engine.RollbackIfNeeded(); errcode.Of(err) {
	case errcode.OK:
		return platform.Outcome{}, false, nil
	case errcode.Rebooting:
		return platform.Outcome{Kind: platform.Reboot}, true, nil
	default:
		return platform.Outcome{}, false, err
	}
}

// finish classifies the result of a cycle.
func (n *Node) finish(err error) platform.Outcome {
	switch {
	case err == nil:
		n.log.Info("Tasks completed successfully")
		if verified, err := n.engine.MarkVerifiedIfNeeded(); err != nil {
			n.log.Error("Failed to verify firmware", "err", err)
			return platform.HaltOutcome()
		} else if verified {
			n.log.Info("Firmware verified")
		}

	case errcode.Recoverable(err):
		n.log.Error("OS Error", "err", err)
		if serr := n.nvs.StoreLastError(err); serr != nil {
			errcode.Report(serr, "Failed to persist error")
		}
		if ierr := n.engine.IncrementFailure(); ierr != nil {
			n.log.Error("Failed to increment failure count", "err", ierr)
			return platform.HaltOutcome()
		}

	default:
		n.log.Error("OS Error", "err", err)
		n.log.Error("System will now halt")
		return platform.HaltOutcome()
	}

	d := n.settings.SleepDuration()
	if n.deps.Power.ConsoleAttached() {
		n.log.Debug("Using fake sleep instead of deep sleep", "duration", d)
	} else {
		n.log.Debug("Sleeping", "duration", d)
	}
	return platform.SleepFor(n.deps.Power, d)
}
