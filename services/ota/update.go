package ota

import (
	"pixelweather-go/errcode"
)

// Update is an open write transaction against the inactive slot.
//
// Exactly one of Commit or Cancel ends it. Close is the deferred safety net:
// an update that reaches Close still open is a programming error, logged and
// aborted, never committed.
type Update struct {
	engine  *Engine
	w       SlotWriter
	written int
	done    bool
}

// BeginUpdate opens the inactive slot. Only one update may be open.
func (e *Engine) BeginUpdate() (*Update, error) {
	if e.active != nil {
		return nil, errcode.New(errcode.UpdateInProgress, "begin_update", "an update is already open")
	}
	e.log.Debug("Initializing update")
	w, err := e.flash.InitiateUpdate()
	if err != nil {
		return nil, errcode.Wrap(errcode.OtaInit, "begin_update", err)
	}
	u := &Update{engine: e, w: w}
	e.active = u
	return u, nil
}

// Written returns the number of bytes accepted so far.
func (u *Update) Written() int { return u.written }

// Write appends p to the pending image. A failed write leaves the update
// open; the caller is expected to Cancel.
func (u *Update) Write(p []byte) (int, error) {
	if u.done {
		return 0, errcode.New(errcode.UpdateClosed, "write", "update already finished")
	}
	n, err := u.w.Write(p)
	u.written += n
	if err != nil {
		return n, errcode.Wrap(errcode.OtaWrite, "write", err)
	}
	return n, nil
}

// Commit flushes and finalises the image, making it the next boot target. A
// fresh failure budget starts and the outcome is flagged for reporting on the
// next boot. A Commit failure is aborted and returned as OtaFinalize; the
// caller must not carry on as if the update had been installed.
func (u *Update) Commit() error {
	if u.done {
		return errcode.New(errcode.UpdateClosed, "commit", "update already finished")
	}
	log := u.engine.log
	log.Debug("Finalizing update", "bytes", u.written)

	if err := u.w.Flush(); err != nil {
		log.Error("Failed to flush OTA write", "err", err)
		u.abort()
		return errcode.Wrap(errcode.OtaFinalize, "flush", err)
	}
	if err := u.w.Complete(); err != nil {
		log.Error("Failed to complete update", "err", err)
		u.abort()
		return errcode.Wrap(errcode.OtaFinalize, "complete", err)
	}
	u.finish()

	r := u.engine.retained
	r.ResetFailures()
	r.SetReportPending(true)
	return nil
}

// Cancel discards the pending image. The boot target and the running slot
// are not touched.
func (u *Update) Cancel() error {
	if u.done {
		return errcode.New(errcode.UpdateClosed, "cancel", "update already finished")
	}
	u.engine.log.Debug("Cancelling update", "bytes", u.written)
	return u.abort()
}

// Close aborts an update that was neither committed nor cancelled. It is
// safe to defer unconditionally.
func (u *Update) Close() error {
	if u.done {
		return nil
	}
	u.engine.log.Error("Update released without commit or cancel, aborting")
	return u.abort()
}

// abort is the single cleanup routine for every error branch.
func (u *Update) abort() error {
	u.finish()
	return errcode.Wrap(errcode.OtaAbort, "abort", u.w.Abort())
}

func (u *Update) finish() {
	u.done = true
	if u.engine.active == u {
		u.engine.active = nil
	}
}
