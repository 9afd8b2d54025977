// Package platform is the seam between the run cycle and the board: reset
// cause, console detection and the ways a cycle can end.
package platform

import (
	"context"
	"fmt"
	"time"

	"pixelweather-go/types"
)

// InfiniteSleep is the longest timer the sleep controller accepts (about one
// month). Halting the node uses it.
const InfiniteSleep = 2_629_746 * time.Second

// Power is the board's reset and sleep controller.
type Power interface {
	ResetReason() types.ResetReason
	// ConsoleAttached reports whether a host is connected over USB. Such a
	// node is externally powered.
	ConsoleAttached() bool
	// DeepSleep powers down with a timer wakeup. It does not return on
	// hardware.
	DeepSleep(d time.Duration)
	// Restart performs a software reset. It does not return on hardware.
	Restart()
}

// Kind is how a cycle ends.
type Kind uint8

const (
	// Sleep enters deep sleep for Duration.
	Sleep Kind = iota
	// FakeSleep waits for Duration without powering down, then restarts,
	// keeping a debugging console connected.
	FakeSleep
	// Halt sleeps for InfiniteSleep.
	Halt
	// Reboot restarts immediately.
	Reboot
)

func (k Kind) String() string {
	switch k {
	case Sleep:
		return "sleep"
	case FakeSleep:
		return "fake_sleep"
	case Halt:
		return "halt"
	case Reboot:
		return "reboot"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Outcome is the end of one cycle.
type Outcome struct {
	Kind     Kind
	Duration time.Duration
}

func (o Outcome) String() string {
	if o.Kind == Sleep || o.Kind == FakeSleep {
		return o.Kind.String() + " " + o.Duration.String()
	}
	return o.Kind.String()
}

// SleepFor picks a real or fake sleep depending on the power source.
func SleepFor(p Power, d time.Duration) Outcome {
	if p.ConsoleAttached() {
		return Outcome{Kind: FakeSleep, Duration: d}
	}
	return Outcome{Kind: Sleep, Duration: d}
}

// HaltOutcome parks the node.
func HaltOutcome() Outcome { return Outcome{Kind: Halt, Duration: InfiniteSleep} }

// Execute carries out o. A fake sleep can be cut short through ctx; the node
// restarts either way.
func Execute(ctx context.Context, p Power, o Outcome) {
	switch o.Kind {
	case Sleep:
		p.DeepSleep(o.Duration)
	case FakeSleep:
		t := time.NewTimer(o.Duration)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
		p.Restart()
	case Halt:
		p.DeepSleep(InfiniteSleep)
	case Reboot:
		p.Restart()
	}
}
