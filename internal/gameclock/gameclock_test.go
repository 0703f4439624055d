package gameclock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestClock(countdown, play int) (*Clock, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClock()
	return New(Config{CountdownSecs: countdown, PlaySecs: play}, fc), fc
}

func TestNew_StartsIdle(t *testing.T) {
	c, _ := newTestClock(3, 10)
	if c.Phase() != PhaseIdle {
		t.Errorf("phase = %q, want %q", c.Phase(), PhaseIdle)
	}
	if c.C() != nil {
		t.Error("idle clock should have no tick channel")
	}
}

func TestClock_FullRun(t *testing.T) {
	c, _ := newTestClock(3, 10)

	tr, ok := c.Start()
	if !ok || tr.To != PhaseCountdown {
		t.Fatalf("Start() = %+v %v, want countdown", tr, ok)
	}
	if c.State().CountdownRemaining != 3 {
		t.Errorf("countdown = %d, want 3", c.State().CountdownRemaining)
	}

	for i := 0; i < 2; i++ {
		if _, changed := c.Tick(); changed {
			t.Fatalf("tick %d should not change phase", i)
		}
	}
	tr, changed := c.Tick()
	if !changed || tr.From != PhaseCountdown || tr.To != PhasePlaying {
		t.Fatalf("third tick = %+v %v, want countdown->playing", tr, changed)
	}
	if c.State().TimeRemaining != 10 {
		t.Errorf("timeRemaining = %d, want 10", c.State().TimeRemaining)
	}

	for i := 0; i < 9; i++ {
		c.Tick()
	}
	if c.Phase() != PhasePlaying || c.State().TimeRemaining != 1 {
		t.Fatalf("state = %+v, want playing with 1s left", c.State())
	}
	tr, changed = c.Tick()
	if !changed || tr.To != PhaseFinished {
		t.Fatalf("last tick = %+v %v, want finished", tr, changed)
	}
	if c.C() != nil {
		t.Error("finished clock should detach its ticker")
	}

	if _, changed := c.Tick(); changed {
		t.Error("finished is terminal until reset")
	}
}

func TestClock_StartOnlyFromIdle(t *testing.T) {
	c, _ := newTestClock(3, 10)
	c.Start()
	if _, ok := c.Start(); ok {
		t.Error("Start() during countdown should be rejected")
	}
}

func TestClock_ZeroCountdownStartsPlaying(t *testing.T) {
	c, _ := newTestClock(0, 5)
	tr, _ := c.Start()
	if tr.To != PhasePlaying || c.State().TimeRemaining != 5 {
		t.Errorf("state = %+v, want playing with 5s", c.State())
	}
}

func TestClock_ResetCancelsTicks(t *testing.T) {
	c, fc := newTestClock(3, 10)
	c.Start()
	ch := c.C()
	if ch == nil {
		t.Fatal("running clock should expose a tick channel")
	}

	tr, ok := c.Reset()
	if !ok || tr.From != PhaseCountdown || tr.To != PhaseIdle {
		t.Errorf("Reset() = %+v %v", tr, ok)
	}
	if c.C() != nil {
		t.Error("reset clock should have no tick channel")
	}

	fc.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Error("stopped ticker should not fire")
	case <-time.After(50 * time.Millisecond):
	}
	if _, changed := c.Tick(); changed || c.Phase() != PhaseIdle {
		t.Error("ticks while idle must not change phase")
	}
}

func TestClock_ResetWhenIdleIsNoop(t *testing.T) {
	c, _ := newTestClock(3, 10)
	if _, ok := c.Reset(); ok {
		t.Error("Reset() while idle should report no transition")
	}
	c.Reset()
}

func TestClock_TickerFiresEverySecond(t *testing.T) {
	c, fc := newTestClock(3, 10)
	c.Start()

	fc.Advance(time.Second)
	select {
	case <-c.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire after one second")
	}
}

func TestClock_RestartAfterFinish(t *testing.T) {
	c, _ := newTestClock(1, 1)
	c.Start()
	c.Tick()
	c.Tick()
	if c.Phase() != PhaseFinished {
		t.Fatalf("phase = %q, want finished", c.Phase())
	}
	c.Reset()
	if _, ok := c.Start(); !ok {
		t.Error("Start() after Reset should work")
	}
}
