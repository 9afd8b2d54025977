package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pixelweather-go/types"
)

type recPower struct {
	console  bool
	slept    []time.Duration
	restarts int
}

func (p *recPower) ResetReason() types.ResetReason { return types.ResetPowerOn }
func (p *recPower) ConsoleAttached() bool          { return p.console }
func (p *recPower) DeepSleep(d time.Duration)      { p.slept = append(p.slept, d) }
func (p *recPower) Restart()                       { p.restarts++ }

func TestSleepForFollowsPowerSource(t *testing.T) {
	assert.Equal(t, Outcome{Kind: Sleep, Duration: time.Minute}, SleepFor(&recPower{}, time.Minute))
	assert.Equal(t, Outcome{Kind: FakeSleep, Duration: time.Minute}, SleepFor(&recPower{console: true}, time.Minute))
}

func TestExecute(t *testing.T) {
	p := &recPower{}
	Execute(context.Background(), p, Outcome{Kind: Sleep, Duration: time.Minute})
	Execute(context.Background(), p, HaltOutcome())
	assert.Equal(t, []time.Duration{time.Minute, InfiniteSleep}, p.slept)

	Execute(context.Background(), p, Outcome{Kind: Reboot})
	assert.Equal(t, 1, p.restarts)
}

func TestFakeSleepIsInterruptible(t *testing.T) {
	p := &recPower{console: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	Execute(ctx, p, Outcome{Kind: FakeSleep, Duration: time.Hour})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, p.restarts)
	assert.Empty(t, p.slept)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "sleep 1m0s", Outcome{Kind: Sleep, Duration: time.Minute}.String())
	assert.Equal(t, "halt", HaltOutcome().String())
}
