package htu21d

import (
	"errors"
	"testing"
	"time"
)

type fakeBus struct {
	regs  map[byte][]byte
	fails int
	last  []byte
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if addr != Address {
		return errors.New("nack")
	}
	if b.fails > 0 {
		b.fails--
		return errors.New("busy")
	}
	b.last = append([]byte(nil), w...)
	if len(r) > 0 {
		copy(r, b.regs[w[0]])
	}
	return nil
}

func fastDevice(bus *fakeBus) Device {
	d := New(bus)
	if err := d.Configure(Config{RetryInterval: time.Millisecond, ResetDelay: time.Microsecond, CommandTimeout: 20 * time.Millisecond}); err != nil {
		panic(err)
	}
	return d
}

func TestCRC8DatasheetVectors(t *testing.T) {
	cases := []struct {
		in   []byte
		want byte
	}{
		{[]byte{0xDC}, 0x79},
		{[]byte{0x68, 0x3A}, 0x7C},
		{[]byte{0x4E, 0x85}, 0x6B},
	}
	for _, c := range cases {
		if got := CRC8(c.in); got != c.want {
			t.Fatalf("CRC8(% X) = %#02x, want %#02x", c.in, got, c.want)
		}
	}
}

func TestConversions(t *testing.T) {
	if got := TempFromRaw(0x683A &^ 3); got != 2468 {
		t.Fatalf("TempFromRaw = %d", got)
	}
	if got := HumidityFromRaw(0x4E85 &^ 3); got != 3233 {
		t.Fatalf("HumidityFromRaw = %d", got)
	}
	if got := HumidityFromRaw(0); got != -600 {
		t.Fatalf("HumidityFromRaw(0) = %d", got)
	}
}

func TestMeasure(t *testing.T) {
	bus := &fakeBus{regs: map[byte][]byte{
		cmdTempHold:     {0x68, 0x3A, 0x7C},
		cmdHumidityHold: {0x4E, 0x85, 0x6B},
	}}
	d := fastDevice(bus)

	c, err := d.CentiCelsius()
	if err != nil || c != 2468 {
		t.Fatalf("CentiCelsius = %d, %v", c, err)
	}
	h, err := d.CentiRelHumidity()
	if err != nil || h != 3233 {
		t.Fatalf("CentiRelHumidity = %d, %v", h, err)
	}
}

func TestMeasureRejectsBadCRC(t *testing.T) {
	bus := &fakeBus{regs: map[byte][]byte{cmdTempHold: {0x68, 0x3A, 0x00}}}
	d := fastDevice(bus)
	if _, err := d.CentiCelsius(); !errors.Is(err, ErrCRC) {
		t.Fatalf("err = %v, want ErrCRC", err)
	}
}

func TestRetriesThenTimesOut(t *testing.T) {
	bus := &fakeBus{regs: map[byte][]byte{cmdTempHold: {0x68, 0x3A, 0x7C}}}
	d := fastDevice(bus)

	bus.fails = 2
	if _, err := d.CentiCelsius(); err != nil {
		t.Fatalf("transient failures should be retried: %v", err)
	}

	bus.fails = 1 << 30
	if _, err := d.CentiCelsius(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestSerial(t *testing.T) {
	b := []byte{0x12, 0x34, 0, 0x56, 0x78, 0}
	b[2] = CRC8(b[0:2])
	b[5] = CRC8(b[3:5])
	bus := &fakeBus{regs: map[byte][]byte{
		0xFA: {0xA1, 0, 0xA2, 0, 0xA3, 0, 0xA4, 0},
		0xFC: b,
	}}
	d := fastDevice(bus)

	sn, err := d.Serial()
	if err != nil {
		t.Fatal(err)
	}
	want := [8]byte{0xA1, 0xA2, 0xA3, 0xA4, 0x12, 0x34, 0x56, 0x78}
	if sn != want {
		t.Fatalf("Serial = % X, want % X", sn, want)
	}
}
