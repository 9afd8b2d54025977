// Package sim is a host simulator of the node board. It stands in for the
// flash slots, radio, ADC, sensor bus and sleep controller so whole wake
// cycles can run on a workstation and in tests.
package sim

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"pixelweather-go/services/ota"
	"pixelweather-go/types"
)

// Image layout: a one-line header followed by the payload.
const imageMagic = "PWOS:"

// BuildImage wraps payload in an image announcing version token (for
// example "v1.5.0-0-g1234abc").
func BuildImage(token string, payload []byte) []byte {
	out := make([]byte, 0, len(imageMagic)+len(token)+1+len(payload))
	out = append(out, imageMagic...)
	out = append(out, token...)
	out = append(out, '\n')
	return append(out, payload...)
}

// ParseImage returns the version token of an image.
func ParseImage(img []byte) (string, error) {
	rest, ok := bytes.CutPrefix(img, []byte(imageMagic))
	if !ok {
		return "", errors.New("bad image magic")
	}
	line, _, ok := bytes.Cut(rest, []byte{'\n'})
	if !ok || len(line) == 0 {
		return "", errors.New("bad image header")
	}
	token := string(line)
	if strings.ContainsAny(token, " \t\r") {
		return "", errors.New("bad image header")
	}
	return token, nil
}

// SlotData is one simulated partition.
type SlotData struct {
	Label   string          `cbor:"1,keyasint"`
	State   types.SlotState `cbor:"2,keyasint"`
	Version string          `cbor:"3,keyasint,omitempty"` // empty: no metadata
	Image   []byte          `cbor:"4,keyasint,omitempty"`
}

// Flash holds two slots and the boot target.
type Flash struct {
	Slots   [2]SlotData `cbor:"1,keyasint"`
	Running int         `cbor:"2,keyasint"`
	Boot    int         `cbor:"3,keyasint"`

	// OnReboot is called by MarkRunningSlotInvalidAndReboot.
	OnReboot func() `cbor:"-"`
	// FailComplete makes image validation fail.
	FailComplete bool `cbor:"-"`

	writing bool
}

var _ ota.Flash = (*Flash)(nil)

// NewFlash returns a flash whose first slot runs token, already verified.
func NewFlash(token string) *Flash {
	return &Flash{Slots: [2]SlotData{
		{Label: "ota_0", State: types.SlotValid, Version: token, Image: BuildImage(token, nil)},
		{Label: "ota_1", State: types.SlotUndefined},
	}}
}

func (f *Flash) other() int { return 1 - f.Running }

func (s SlotData) slot() types.Slot {
	out := types.Slot{Label: s.Label, State: s.State}
	if s.Version != "" {
		out.Firmware = &types.FirmwareInfo{Version: s.Version}
	}
	return out
}

// ApplyBoot makes the boot target the running slot, as a reset does.
func (f *Flash) ApplyBoot() { f.Running = f.Boot }

func (f *Flash) RunningSlot() (types.Slot, error) { return f.Slots[f.Running].slot(), nil }

func (f *Flash) LastInvalidSlot() (*types.Slot, error) {
	o := f.Slots[f.other()]
	if o.State != types.SlotInvalid {
		return nil, nil
	}
	s := o.slot()
	return &s, nil
}

func (f *Flash) MarkRunningSlotValid() error {
	f.Slots[f.Running].State = types.SlotValid
	return nil
}

func (f *Flash) MarkRunningSlotInvalidAndReboot() error {
	o := f.Slots[f.other()]
	if o.State != types.SlotValid || o.Version == "" {
		return fmt.Errorf("no valid slot to roll back to")
	}
	f.Slots[f.Running].State = types.SlotInvalid
	f.Boot = f.other()
	if f.OnReboot != nil {
		f.OnReboot()
	}
	return nil
}

func (f *Flash) InitiateUpdate() (ota.SlotWriter, error) {
	if f.writing {
		return nil, errors.New("update already open")
	}
	f.writing = true
	return &slotWriter{f: f, idx: f.other()}, nil
}

type slotWriter struct {
	f    *Flash
	idx  int
	buf  bytes.Buffer
	done bool
}

func (w *slotWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, errors.New("write after close")
	}
	return w.buf.Write(p)
}

func (w *slotWriter) Flush() error { return nil }

func (w *slotWriter) Complete() error {
	if w.done {
		return errors.New("already closed")
	}
	w.done = true
	w.f.writing = false

	token, err := ParseImage(w.buf.Bytes())
	if err != nil {
		return err
	}
	if w.f.FailComplete {
		return errors.New("image validation failed")
	}
	w.f.Slots[w.idx] = SlotData{
		Label:   w.f.Slots[w.idx].Label,
		State:   types.SlotPending,
		Version: token,
		Image:   bytes.Clone(w.buf.Bytes()),
	}
	w.f.Boot = w.idx
	return nil
}

func (w *slotWriter) Abort() error {
	if !w.done {
		w.done = true
		w.f.writing = false
	}
	return nil
}
