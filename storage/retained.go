package storage

import (
	"github.com/fxamacker/cbor/v2"

	"pixelweather-go/errcode"
	"pixelweather-go/types"
)

// Retained is the state that survives deep sleep but not power loss.
//
// On hardware it lives in RTC memory; here it is an explicit object the boot
// code creates with InitRetained and threads through the OTA engine and the
// run cycle. Using a zero Retained panics: its contents are undefined until
// the cold/warm decision has been made.
type Retained struct {
	ready bool
	cold  bool
	mem   retainedMem
}

// retainedMem is the memory image. Field tags keep snapshots compatible
// across firmware versions.
type retainedMem struct {
	Failures      uint8 `cbor:"1,keyasint"`
	ReportPending bool  `cbor:"2,keyasint"`
}

// Cold boots start with no failures and a pending report: an update or
// rollback whose outcome was never delivered is reported again after power
// loss rather than forgotten.
var coldDefaults = retainedMem{Failures: 0, ReportPending: true}

// InitRetained makes the cold/warm decision from the reset cause. image is
// the memory that survived the reset (nil if none); it is ignored on a cold
// boot. A warm boot without an image starts from the cold defaults.
func InitRetained(reason types.ResetReason, image []byte) (*Retained, error) {
	r := &Retained{ready: true, cold: reason.Cold(), mem: coldDefaults}
	if r.cold || len(image) == 0 {
		return r, nil
	}
	var mem retainedMem
	if err := cbor.Unmarshal(image, &mem); err != nil {
		return nil, errcode.Wrap(errcode.UnexpectedBufferFailure, "retained_init", err)
	}
	r.mem = mem
	return r, nil
}

func (r *Retained) check() {
	if r == nil || !r.ready {
		panic("storage: retained state used before InitRetained")
	}
}

// ColdBoot reports whether the counters were reset at this boot.
func (r *Retained) ColdBoot() bool { r.check(); return r.cold }

func (r *Retained) Failures() uint8 { r.check(); return r.mem.Failures }

// IncFailures increments the failure counter (saturating) and returns the new
// value.
func (r *Retained) IncFailures() uint8 {
	r.check()
	if r.mem.Failures < ^uint8(0) {
		r.mem.Failures++
	}
	return r.mem.Failures
}

func (r *Retained) ResetFailures() { r.check(); r.mem.Failures = 0 }

func (r *Retained) ReportPending() bool { r.check(); return r.mem.ReportPending }

func (r *Retained) SetReportPending(v bool) { r.check(); r.mem.ReportPending = v }

// Image serialises the retained memory for platforms that emulate RTC memory
// (the host simulator keeps it in a file across "deep sleep").
func (r *Retained) Image() ([]byte, error) {
	r.check()
	return cbor.Marshal(r.mem)
}
