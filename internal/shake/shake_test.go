package shake

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"shakegame/internal/sensor"
)

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func scenarioConfig() Config {
	return Config{
		Threshold:         2.0,
		Cooldown:          500 * time.Millisecond,
		StrongMultiplier:  2.0,
		MilestoneInterval: 10,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Threshold != 1.5 || cfg.Cooldown != 150*time.Millisecond {
		t.Errorf("DefaultConfig() = %+v, want threshold 1.5 and cooldown 150ms", cfg)
	}
	d := New(Config{Threshold: 1}, nil)
	if d.Active() {
		t.Error("New() should return an inactive debouncer")
	}
	d.Start()
	d.Process(sensor.Sample{X: 5}, at(0))
	d.Stop()
	if d.Active() || d.Count() != 1 {
		t.Errorf("after Stop: active = %v, count = %d, want false and 1", d.Active(), d.Count())
	}
}

func TestDebouncer_InactiveIgnoresSamples(t *testing.T) {
	d := New(scenarioConfig(), nil)
	if _, ok := d.Process(sensor.Sample{X: 100}, at(0)); ok {
		t.Error("inactive debouncer should not accept pulses")
	}
	if d.Count() != 0 {
		t.Errorf("Count = %d, want 0", d.Count())
	}
}

func TestDebouncer_Scenario(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()

	if _, ok := d.Process(sensor.Sample{}, at(0)); ok {
		t.Error("first sample at rest should not be a pulse")
	}
	p, ok := d.Process(sensor.Sample{X: 10}, at(600))
	if !ok {
		t.Fatal("delta 10 with no prior pulse should be accepted")
	}
	if p.Count != 1 || p.Delta != 10 {
		t.Errorf("pulse = %+v, want count 1 delta 10", p)
	}
	if _, ok := d.Process(sensor.Sample{X: 10}, at(650)); ok {
		t.Error("same position should not be a pulse")
	}
	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1", d.Count())
	}
}

func TestDebouncer_Cooldown(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()

	d.Process(sensor.Sample{X: 10}, at(1000))
	if _, ok := d.Process(sensor.Sample{X: -10}, at(1400)); ok {
		t.Error("pulse inside cooldown should be rejected")
	}
	if _, ok := d.Process(sensor.Sample{X: 10}, at(1500)); ok {
		t.Error("pulse exactly at cooldown should be rejected")
	}
	if _, ok := d.Process(sensor.Sample{X: -10}, at(1501)); !ok {
		t.Error("pulse after cooldown should be accepted")
	}
	if d.Count() != 2 {
		t.Errorf("Count = %d, want 2", d.Count())
	}
}

func TestDebouncer_BaselineMovesOnRejectedSample(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()

	d.Process(sensor.Sample{X: 10}, at(1000))
	// large move inside cooldown: rejected but becomes the new baseline
	d.Process(sensor.Sample{X: 20}, at(1100))
	// measured against X=20, not X=10
	if _, ok := d.Process(sensor.Sample{X: 21}, at(2000)); ok {
		t.Error("delta against the updated baseline is 1, should not pulse")
	}
}

func TestDebouncer_ThresholdIsStrict(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()
	if _, ok := d.Process(sensor.Sample{X: 2}, at(0)); ok {
		t.Error("delta equal to threshold should not pulse")
	}
}

func TestDebouncer_StopFreezesState(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()
	d.Process(sensor.Sample{X: 10}, at(0))
	d.Stop()
	d.Stop()

	if _, ok := d.Process(sensor.Sample{X: -10}, at(5000)); ok {
		t.Error("stopped debouncer should not pulse")
	}
	if d.Count() != 1 || d.Active() {
		t.Errorf("Count = %d active = %v, want 1 false", d.Count(), d.Active())
	}
}

func TestDebouncer_ResetThenStart(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()
	d.Process(sensor.Sample{X: 10}, at(0))
	d.Process(sensor.Sample{X: -10}, at(1000))

	d.Reset()
	if !d.Active() {
		t.Error("Reset should not change activation")
	}
	d.Stop()
	d.Start()
	if d.Count() != 0 {
		t.Errorf("Count after reset+start = %d, want 0", d.Count())
	}
	// cooldown was cleared, so an immediate shake counts
	if _, ok := d.Process(sensor.Sample{X: 10}, at(1001)); !ok {
		t.Error("first shake after reset should be accepted")
	}
}

func TestDebouncer_StartKeepsCountButClearsBaseline(t *testing.T) {
	d := New(scenarioConfig(), nil)
	d.Start()
	d.Process(sensor.Sample{X: 10}, at(0))
	d.Stop()
	d.Start()

	if d.Count() != 1 {
		t.Errorf("Count = %d, want 1", d.Count())
	}
	if _, ok := d.Process(sensor.Sample{X: 10}, at(100)); !ok {
		t.Error("baseline should be zero after Start, so X=10 is a shake")
	}
}

func TestDebouncer_Tiers(t *testing.T) {
	var got []Tier
	fb := FeedbackFunc(func(p Pulse) error {
		got = append(got, p.Tier)
		return nil
	})
	cfg := scenarioConfig()
	cfg.MilestoneInterval = 3
	d := New(cfg, fb)
	d.Start()

	d.Process(sensor.Sample{X: 3}, at(0))      // delta 3: normal
	d.Process(sensor.Sample{X: -3}, at(1000))  // delta 6: strong
	d.Process(sensor.Sample{X: 0}, at(2000))   // count 3: milestone
	d.Process(sensor.Sample{X: 4}, at(3000))   // delta 4: exactly 2x, normal

	want := []Tier{TierNormal, TierStrong, TierMilestone, TierNormal}
	if len(got) != len(want) {
		t.Fatalf("tiers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tier[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDebouncer_FeedbackErrorIsSwallowed(t *testing.T) {
	calls := 0
	d := New(scenarioConfig(), FeedbackFunc(func(Pulse) error {
		calls++
		return errors.New("haptics offline")
	}))
	d.Start()

	if _, ok := d.Process(sensor.Sample{X: 10}, at(0)); !ok {
		t.Fatal("pulse should be accepted despite feedback failure")
	}
	if calls != 1 || d.Count() != 1 {
		t.Errorf("calls = %d count = %d, want 1 1", calls, d.Count())
	}
}

func TestDebouncer_PropertiesOnRandomStreams(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cfg := scenarioConfig()

	for run := 0; run < 50; run++ {
		d := New(cfg, nil)
		d.Start()

		var ms int64
		var lastPulse time.Time
		havePulse := false
		prevCount := 0

		for i := 0; i < 500; i++ {
			// irregular delivery between 10ms and 250ms
			ms += 10 + rng.Int63n(240)
			s := sensor.Sample{
				X: rng.NormFloat64() * 3,
				Y: rng.NormFloat64() * 3,
				Z: rng.NormFloat64() * 3,
			}
			p, ok := d.Process(s, at(ms))

			if d.Count() < prevCount || d.Count() > prevCount+1 {
				t.Fatalf("run %d: count went %d -> %d", run, prevCount, d.Count())
			}
			if ok {
				if havePulse && p.At.Sub(lastPulse) <= cfg.Cooldown {
					t.Fatalf("run %d: pulses %v apart, cooldown %v", run, p.At.Sub(lastPulse), cfg.Cooldown)
				}
				lastPulse = p.At
				havePulse = true
			}
			prevCount = d.Count()
		}
	}
}
