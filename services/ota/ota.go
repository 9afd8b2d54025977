// Package ota owns the A/B firmware slot state machine: boot-time rollback,
// verification, outcome reporting and transactional update application.
//
// The engine never decides on its own to reboot; the only reboot it causes is
// the bootloader rollback primitive, called from RollbackIfNeeded before any
// network activity.
package ota

import (
	"log/slog"

	"pixelweather-go/errcode"
	"pixelweather-go/storage"
	"pixelweather-go/types"
	"pixelweather-go/x/logx"
)

// DefaultMaxFailures is the number of consecutive failed cycles a provisional
// slot may accumulate before it is rolled back.
const DefaultMaxFailures = 3

// Flash is the platform's slot management primitive set.
type Flash interface {
	RunningSlot() (types.Slot, error)
	// LastInvalidSlot returns the non-running slot if it is marked invalid.
	LastInvalidSlot() (*types.Slot, error)
	// InitiateUpdate opens the inactive slot for writing.
	InitiateUpdate() (SlotWriter, error)
	MarkRunningSlotValid() error
	// MarkRunningSlotInvalidAndReboot demotes the running slot, makes the
	// other slot the boot target and reboots. On hardware it does not return.
	MarkRunningSlotInvalidAndReboot() error
}

// SlotWriter is the only legal write cursor into the inactive slot.
type SlotWriter interface {
	Write(p []byte) (int, error)
	Flush() error
	// Complete validates the image and sets it as the next boot target.
	Complete() error
	// Abort discards the image; the boot target is left untouched.
	Abort() error
}

// State summarises where the engine is.
type State uint8

const (
	ProvisionalUnverified State = iota
	Confirmed
	RollbackPending
	UpdateInProgress
)

func (s State) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case RollbackPending:
		return "rollback_pending"
	case UpdateInProgress:
		return "update_in_progress"
	}
	return "provisional"
}

// Config tunes the engine. Zero values take defaults.
type Config struct {
	MaxFailures uint8
}

// Engine is the OTA engine. It must be used from a single goroutine, and
// holding it is the only way to open an update.
type Engine struct {
	flash    Flash
	retained *storage.Retained
	max      uint8
	active   *Update
	log      *slog.Logger
}

// New constructs the engine over flash. retained must already be initialised
// from the reset cause.
func New(flash Flash, retained *storage.Retained, cfg Config) *Engine {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	return &Engine{
		flash:    flash,
		retained: retained,
		max:      cfg.MaxFailures,
		log:      logx.Module("ota"),
	}
}

// MaxFailures returns the rollback threshold.
func (e *Engine) MaxFailures() uint8 { return e.max }

// State reports the engine state.
func (e *Engine) State() (State, error) {
	if e.active != nil {
		return UpdateInProgress, nil
	}
	ok, err := e.CurrentSlotConfirmed()
	switch {
	case err != nil:
		return ProvisionalUnverified, err
	case ok:
		return Confirmed, nil
	case e.retained.Failures() >= e.max:
		return RollbackPending, nil
	}
	return ProvisionalUnverified, nil
}

// CurrentSlotConfirmed reports whether the running slot is Valid.
func (e *Engine) CurrentSlotConfirmed() (bool, error) {
	slot, err := e.flash.RunningSlot()
	if err != nil {
		return false, errcode.Wrap(errcode.OtaSlot, "running_slot", err)
	}
	return slot.State == types.SlotValid, nil
}

// RollbackDetected reports whether the other slot was demoted, i.e. this
// boot is the result of an automatic rollback.
func (e *Engine) RollbackDetected() (bool, error) {
	slot, err := e.flash.LastInvalidSlot()
	if err != nil {
		return false, errcode.Wrap(errcode.OtaSlot, "last_invalid_slot", err)
	}
	return slot != nil, nil
}

// RollbackIfNeeded rolls back a provisional slot that has used up its
// failure budget. On hardware the rollback path does not return; platforms
// that do return (the simulator) yield a Rebooting error and the caller must
// stop the cycle.
func (e *Engine) RollbackIfNeeded() error {
	ok, err := e.CurrentSlotConfirmed()
	if err != nil || ok {
		return err
	}
	n := e.retained.Failures()
	if n < e.max {
		e.log.Debug("Provisional firmware within failure budget", "failures", n, "max", e.max)
		return nil
	}
	e.log.Info("Rolling back to previous version", "failures", n, "max", e.max)
	// The previous slot has to report the failed update even if this one
	// already reported success.
	e.retained.SetReportPending(true)
	if err := e.flash.MarkRunningSlotInvalidAndReboot(); err != nil {
		return errcode.Wrap(errcode.OtaSlot, "rollback", err)
	}
	return errcode.Rebooting
}

// ReportNeeded reports whether the outcome of the last update or rollback
// still has to be sent upstream.
func (e *Engine) ReportNeeded() (bool, error) {
	confirmed, err := e.CurrentSlotConfirmed()
	if err != nil {
		return false, err
	}
	rolledBack, err := e.RollbackDetected()
	if err != nil {
		return false, err
	}
	if confirmed && !rolledBack {
		e.log.Debug("Skipping report check on verified firmware")
		return false, nil
	}
	return e.retained.ReportPending(), nil
}

// MarkReported clears the report-pending flag.
func (e *Engine) MarkReported() { e.retained.SetReportPending(false) }

// IncrementFailure counts a failed cycle against a provisional slot. It is a
// no-op on confirmed firmware: a bad network is no reason to roll back.
func (e *Engine) IncrementFailure() error {
	ok, err := e.CurrentSlotConfirmed()
	if err != nil || ok {
		return err
	}
	n := e.retained.IncFailures()
	e.log.Warn("Firmware has failed", "count", n, "max", e.max)
	return nil
}

// MarkVerifiedIfNeeded confirms a provisional slot after a fully successful
// cycle. It reports whether a transition happened.
func (e *Engine) MarkVerifiedIfNeeded() (bool, error) {
	ok, err := e.CurrentSlotConfirmed()
	if err != nil || ok {
		return false, err
	}
	if err := e.flash.MarkRunningSlotValid(); err != nil {
		return false, errcode.Wrap(errcode.OtaSlot, "mark_valid", err)
	}
	e.retained.ResetFailures()
	e.log.Info("Firmware validated successfully")
	return true, nil
}

// CurrentVersion parses the running slot's version token.
func (e *Engine) CurrentVersion() (types.Version, error) {
	slot, err := e.flash.RunningSlot()
	if err != nil {
		return types.Version{}, errcode.Wrap(errcode.OtaSlot, "running_slot", err)
	}
	return slotVersion(slot, "current")
}

// PreviousVersion parses the demoted slot's version token. ok is false when
// no slot is marked invalid.
func (e *Engine) PreviousVersion() (v types.Version, ok bool, err error) {
	slot, err := e.flash.LastInvalidSlot()
	if err != nil {
		return v, false, errcode.Wrap(errcode.OtaSlot, "last_invalid_slot", err)
	}
	if slot == nil {
		return v, false, nil
	}
	v, err = slotVersion(*slot, "previous")
	return v, err == nil, err
}

func slotVersion(slot types.Slot, which string) (types.Version, error) {
	if slot.Firmware == nil {
		return types.Version{}, errcode.New(errcode.MissingPartitionMetadata, which+"_version", slot.Label)
	}
	return ParseSlotVersion(slot.Firmware.Version)
}
