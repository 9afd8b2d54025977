package ota

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelweather-go/errcode"
	"pixelweather-go/storage"
	"pixelweather-go/types"
)

type fakeWriter struct {
	flash       *fakeFlash
	buf         bytes.Buffer
	writeErr    error
	flushErr    error
	completeErr error
	aborted     int
	completed   int
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}
func (w *fakeWriter) Flush() error { return w.flushErr }
func (w *fakeWriter) Complete() error {
	if w.completeErr != nil {
		return w.completeErr
	}
	w.completed++
	w.flash.other.State = types.SlotPending
	w.flash.bootTarget = w.flash.other.Label
	return nil
}
func (w *fakeWriter) Abort() error { w.aborted++; return nil }

type fakeFlash struct {
	running    types.Slot
	other      types.Slot
	bootTarget string
	rebooted   int
	initErr    error
	slotErr    error
	next       *fakeWriter
}

func newFlash(state types.SlotState) *fakeFlash {
	return &fakeFlash{
		running:    types.Slot{Label: "ota_0", State: state, Firmware: &types.FirmwareInfo{Version: "v1.4.0-0-gabcdef0"}},
		other:      types.Slot{Label: "ota_1", State: types.SlotValid, Firmware: &types.FirmwareInfo{Version: "v1.3.2-5-g0123456"}},
		bootTarget: "ota_0",
	}
}

func (f *fakeFlash) RunningSlot() (types.Slot, error) { return f.running, f.slotErr }
func (f *fakeFlash) LastInvalidSlot() (*types.Slot, error) {
	if f.slotErr != nil {
		return nil, f.slotErr
	}
	if f.other.State != types.SlotInvalid {
		return nil, nil
	}
	s := f.other
	return &s, nil
}
func (f *fakeFlash) InitiateUpdate() (SlotWriter, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	w := f.next
	if w == nil {
		w = &fakeWriter{}
	}
	w.flash = f
	f.next = nil
	return w, nil
}
func (f *fakeFlash) MarkRunningSlotValid() error {
	f.running.State = types.SlotValid
	return nil
}
func (f *fakeFlash) MarkRunningSlotInvalidAndReboot() error {
	f.running.State = types.SlotInvalid
	f.bootTarget = f.other.Label
	f.rebooted++
	return nil
}

func newEngine(t *testing.T, state types.SlotState, failures uint8) (*Engine, *fakeFlash, *storage.Retained) {
	t.Helper()
	r, err := storage.InitRetained(types.ResetDeepSleep, nil)
	require.NoError(t, err)
	for i := uint8(0); i < failures; i++ {
		r.IncFailures()
	}
	f := newFlash(state)
	return New(f, r, Config{}), f, r
}

func TestRollbackIfNeededThreshold(t *testing.T) {
	for _, state := range []types.SlotState{types.SlotValid, types.SlotPending} {
		for failures := uint8(0); failures <= 6; failures++ {
			t.Run(fmt.Sprintf("%s/%d", state, failures), func(t *testing.T) {
				e, f, _ := newEngine(t, state, failures)
				err := e.RollbackIfNeeded()

				want := state != types.SlotValid && failures >= DefaultMaxFailures
				if want {
					assert.Equal(t, errcode.Rebooting, errcode.Of(err))
					assert.Equal(t, 1, f.rebooted)
					assert.Equal(t, "ota_1", f.bootTarget)
				} else {
					assert.NoError(t, err)
					assert.Zero(t, f.rebooted)
				}
			})
		}
	}
}

func TestRollbackReArmsReport(t *testing.T) {
	e, f, r := newEngine(t, types.SlotPending, DefaultMaxFailures)
	e.MarkReported()

	assert.Equal(t, errcode.Rebooting, errcode.Of(e.RollbackIfNeeded()))
	assert.True(t, r.ReportPending())

	// The previous slot now runs and sees the demoted one.
	f.running, f.other = f.other, f.running
	need, err := e.ReportNeeded()
	require.NoError(t, err)
	assert.True(t, need)
}

func TestIncrementFailureOnlyWhileProvisional(t *testing.T) {
	e, _, r := newEngine(t, types.SlotValid, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, e.IncrementFailure())
	}
	assert.Zero(t, r.Failures())

	e, _, r = newEngine(t, types.SlotPending, 0)
	require.NoError(t, e.IncrementFailure())
	require.NoError(t, e.IncrementFailure())
	assert.Equal(t, uint8(2), r.Failures())

	st, err := e.State()
	require.NoError(t, err)
	assert.Equal(t, ProvisionalUnverified, st)
	require.NoError(t, e.IncrementFailure())
	st, _ = e.State()
	assert.Equal(t, RollbackPending, st)
}

func TestCommitResetsCountersExactlyOnce(t *testing.T) {
	e, f, r := newEngine(t, types.SlotPending, 2)
	r.SetReportPending(false)

	u, err := e.BeginUpdate()
	require.NoError(t, err)
	st, _ := e.State()
	assert.Equal(t, UpdateInProgress, st)

	_, err = u.Write([]byte("image-bytes"))
	require.NoError(t, err)
	require.NoError(t, u.Commit())

	assert.Zero(t, r.Failures())
	assert.True(t, r.ReportPending())
	assert.Equal(t, "ota_1", f.bootTarget)
	assert.Equal(t, types.SlotPending, f.other.State)
	assert.Equal(t, 11, u.Written())

	// A second terminal call is refused and changes nothing.
	r.IncFailures()
	r.SetReportPending(false)
	assert.Equal(t, errcode.UpdateClosed, errcode.Of(u.Commit()))
	assert.Equal(t, errcode.UpdateClosed, errcode.Of(u.Cancel()))
	assert.NoError(t, u.Close())
	assert.Equal(t, uint8(1), r.Failures())
	assert.False(t, r.ReportPending())

	_, err = u.Write([]byte("late"))
	assert.Equal(t, errcode.UpdateClosed, errcode.Of(err))
}

func TestCancelLeavesBootTargetAndValidity(t *testing.T) {
	for _, state := range []types.SlotState{types.SlotValid, types.SlotPending} {
		e, f, r := newEngine(t, state, 1)
		w := &fakeWriter{}
		f.next = w

		u, err := e.BeginUpdate()
		require.NoError(t, err)
		_, _ = u.Write([]byte("partial"))
		require.NoError(t, u.Cancel())

		assert.Equal(t, "ota_0", f.bootTarget)
		assert.Equal(t, state, f.running.State)
		assert.Equal(t, types.SlotValid, f.other.State)
		assert.Equal(t, 1, w.aborted)
		assert.Zero(t, w.completed)
		assert.Equal(t, uint8(1), r.Failures())
	}
}

func TestOnlyOneUpdateAtATime(t *testing.T) {
	e, _, _ := newEngine(t, types.SlotValid, 0)
	u, err := e.BeginUpdate()
	require.NoError(t, err)

	_, err = e.BeginUpdate()
	assert.Equal(t, errcode.UpdateInProgress, errcode.Of(err))

	require.NoError(t, u.Cancel())
	u2, err := e.BeginUpdate()
	require.NoError(t, err)
	require.NoError(t, u2.Close())
}

func TestBeginUpdateInitFailure(t *testing.T) {
	e, f, _ := newEngine(t, types.SlotValid, 0)
	f.initErr = errors.New("no ota partition")
	_, err := e.BeginUpdate()
	assert.Equal(t, errcode.OtaInit, errcode.Of(err))

	// The failed attempt does not hold the engine.
	f.initErr = nil
	u, err := e.BeginUpdate()
	require.NoError(t, err)
	require.NoError(t, u.Cancel())
}

func TestCommitFailureAbortsAndKeepsCounters(t *testing.T) {
	cases := map[string]*fakeWriter{
		"flush":    {flushErr: errors.New("flash busy")},
		"complete": {completeErr: errors.New("image invalid")},
	}
	for name, w := range cases {
		t.Run(name, func(t *testing.T) {
			e, f, r := newEngine(t, types.SlotPending, 2)
			r.SetReportPending(false)
			f.next = w

			u, err := e.BeginUpdate()
			require.NoError(t, err)
			err = u.Commit()
			assert.Equal(t, errcode.OtaFinalize, errcode.Of(err))
			assert.False(t, errcode.Recoverable(err))

			assert.Equal(t, 1, w.aborted)
			assert.Equal(t, "ota_0", f.bootTarget)
			assert.Equal(t, uint8(2), r.Failures())
			assert.False(t, r.ReportPending())
		})
	}
}

func TestCloseAbortsForgottenUpdate(t *testing.T) {
	e, f, r := newEngine(t, types.SlotValid, 0)
	r.SetReportPending(false)
	w := &fakeWriter{}
	f.next = w

	u, err := e.BeginUpdate()
	require.NoError(t, err)
	require.NoError(t, u.Close())

	assert.Equal(t, 1, w.aborted)
	assert.Zero(t, w.completed)
	assert.False(t, r.ReportPending())
	st, _ := e.State()
	assert.Equal(t, Confirmed, st)
}

func TestWriteErrorKeepsUpdateOpen(t *testing.T) {
	e, f, _ := newEngine(t, types.SlotValid, 0)
	w := &fakeWriter{writeErr: errors.New("flash i/o")}
	f.next = w

	u, err := e.BeginUpdate()
	require.NoError(t, err)
	_, err = u.Write([]byte("x"))
	assert.Equal(t, errcode.OtaWrite, errcode.Of(err))
	require.NoError(t, u.Cancel())
	assert.Equal(t, 1, w.aborted)
}

func TestReportNeededAndMarkReported(t *testing.T) {
	// Confirmed slot, no rollback: never needed.
	e, _, r := newEngine(t, types.SlotValid, 0)
	r.SetReportPending(true)
	need, err := e.ReportNeeded()
	require.NoError(t, err)
	assert.False(t, need)

	// Provisional slot with pending flag.
	e, _, r = newEngine(t, types.SlotPending, 0)
	r.SetReportPending(true)
	need, err = e.ReportNeeded()
	require.NoError(t, err)
	assert.True(t, need)

	e.MarkReported()
	e.MarkReported()
	assert.False(t, r.ReportPending())
	need, err = e.ReportNeeded()
	require.NoError(t, err)
	assert.False(t, need)

	// Confirmed slot after a rollback.
	e, f, r := newEngine(t, types.SlotValid, 0)
	f.other.State = types.SlotInvalid
	r.SetReportPending(true)
	need, err = e.ReportNeeded()
	require.NoError(t, err)
	assert.True(t, need)
	rolled, err := e.RollbackDetected()
	require.NoError(t, err)
	assert.True(t, rolled)
}

func TestMarkVerifiedIfNeeded(t *testing.T) {
	e, f, r := newEngine(t, types.SlotPending, 2)
	changed, err := e.MarkVerifiedIfNeeded()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.SlotValid, f.running.State)
	assert.Zero(t, r.Failures())

	changed, err = e.MarkVerifiedIfNeeded()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSlotErrorsAreWrapped(t *testing.T) {
	e, f, _ := newEngine(t, types.SlotPending, 5)
	f.slotErr = errors.New("partition table")

	assert.Equal(t, errcode.OtaSlot, errcode.Of(e.RollbackIfNeeded()))
	_, err := e.ReportNeeded()
	assert.Equal(t, errcode.OtaSlot, errcode.Of(err))
	assert.Equal(t, errcode.OtaSlot, errcode.Of(e.IncrementFailure()))
	assert.Zero(t, f.rebooted)
}

func TestVersions(t *testing.T) {
	e, f, _ := newEngine(t, types.SlotValid, 0)
	v, err := e.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, types.Version{Major: 1, Minor: 4, Patch: 0}, v)

	_, ok, err := e.PreviousVersion()
	require.NoError(t, err)
	assert.False(t, ok)

	f.other.State = types.SlotInvalid
	pv, ok, err := e.PreviousVersion()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.3.2", pv.String())

	f.running.Firmware = nil
	_, err = e.CurrentVersion()
	assert.Equal(t, errcode.MissingPartitionMetadata, errcode.Of(err))

	f.other.Firmware.Version = "garbage"
	_, _, err = e.PreviousVersion()
	assert.Equal(t, errcode.IllegalFirmwareVersion, errcode.Of(err))
}

func TestParseSlotVersion(t *testing.T) {
	v, err := ParseSlotVersion("v2.0.0-rc3-8-g1a1ba69")
	require.NoError(t, err)
	assert.Equal(t, types.Version{Major: 2}, v)

	v, err = ParseSlotVersion("v0.12.7-release")
	require.NoError(t, err)
	assert.Equal(t, "0.12.7", v.String())

	for _, bad := range []string{"2.0.0", "v2.0.0", "", "v-abc", "2.0.0-rc3", "vx.y.z-1", "v2.0-1"} {
		_, err := ParseSlotVersion(bad)
		assert.Equal(t, errcode.IllegalFirmwareVersion, errcode.Of(err), "token %q", bad)
		assert.False(t, errcode.Recoverable(err))
	}
}
