// Package shake turns a stream of accelerometer samples into discrete shake
// pulses under a fixed threshold and cooldown.
package shake

import (
	"time"

	"github.com/rs/zerolog/log"

	"shakegame/internal/sensor"
)

// Defaults for the feedback tiers.
const (
	DefaultStrongMultiplier  = 2.0
	DefaultMilestoneInterval = 10
)

// Tier grades an accepted pulse for feedback on the device.
type Tier string

const (
	TierNormal    = Tier("normal")
	TierStrong    = Tier("strong")
	TierMilestone = Tier("milestone")
)

// Config sets the detection threshold, the minimum gap between pulses and
// the tier boundaries.
type Config struct {
	Threshold         float64
	Cooldown          time.Duration
	StrongMultiplier  float64
	MilestoneInterval int // 0 disables milestones
}

// DefaultConfig returns a 1.5 threshold and a 150ms cooldown.
func DefaultConfig() Config {
	return Config{
		Threshold:         1.5,
		Cooldown:          150 * time.Millisecond,
		StrongMultiplier:  DefaultStrongMultiplier,
		MilestoneInterval: DefaultMilestoneInterval,
	}
}

// Pulse is one accepted shake.
type Pulse struct {
	Count int       `json:"count"`
	Delta float64   `json:"delta"`
	Tier  Tier      `json:"tier"`
	At    time.Time `json:"at"`
}

// Feedback receives accepted pulses, e.g. to play haptics or a sound on the
// device. Returned errors are logged and dropped.
type Feedback interface {
	Notify(p Pulse) error
}

// FeedbackFunc adapts a plain function to Feedback.
type FeedbackFunc func(p Pulse) error

func (f FeedbackFunc) Notify(p Pulse) error { return f(p) }

// Debouncer is not safe for concurrent use; it is driven from a single
// event loop.
type Debouncer struct {
	cfg      Config
	feedback Feedback

	active         bool
	count          int
	prev           sensor.Sample
	lastAcceptedAt time.Time
	accepted       bool
}

// New returns an inactive debouncer. fb may be nil.
func New(cfg Config, fb Feedback) *Debouncer {
	if cfg.StrongMultiplier <= 0 {
		cfg.StrongMultiplier = DefaultStrongMultiplier
	}
	return &Debouncer{cfg: cfg, feedback: fb}
}

// Start activates the debouncer with a zeroed baseline and cooldown. The
// count is left alone; use Reset for that.
func (d *Debouncer) Start() {
	d.prev = sensor.Sample{}
	d.lastAcceptedAt = time.Time{}
	d.accepted = false
	d.active = true
}

// Stop deactivates the debouncer, keeping the count.
func (d *Debouncer) Stop() {
	d.active = false
}

// Reset zeroes the count, baseline and cooldown without changing activation.
func (d *Debouncer) Reset() {
	d.count = 0
	d.prev = sensor.Sample{}
	d.lastAcceptedAt = time.Time{}
	d.accepted = false
}

// Count is the number of pulses accepted since the last Reset.
func (d *Debouncer) Count() int { return d.count }

// Active reports whether samples are being processed.
func (d *Debouncer) Active() bool { return d.active }

// Process feeds one sample received at time at. It reports the pulse when the
// sample was accepted. Samples are ignored while inactive.
func (d *Debouncer) Process(s sensor.Sample, at time.Time) (Pulse, bool) {
	if !d.active {
		return Pulse{}, false
	}

	delta := s.Delta(d.prev)
	// The baseline always moves so a large delta that lands inside the
	// cooldown is not counted again on the next sample.
	d.prev = s

	if delta <= d.cfg.Threshold {
		return Pulse{}, false
	}
	if d.accepted && at.Sub(d.lastAcceptedAt) <= d.cfg.Cooldown {
		return Pulse{}, false
	}

	d.count++
	d.lastAcceptedAt = at
	d.accepted = true

	p := Pulse{Count: d.count, Delta: delta, Tier: d.tier(delta, d.count), At: at}
	d.notify(p)
	return p, true
}

func (d *Debouncer) tier(delta float64, count int) Tier {
	if d.cfg.MilestoneInterval > 0 && count%d.cfg.MilestoneInterval == 0 {
		return TierMilestone
	}
	if delta > d.cfg.Threshold*d.cfg.StrongMultiplier {
		return TierStrong
	}
	return TierNormal
}

func (d *Debouncer) notify(p Pulse) {
	if d.feedback == nil {
		return
	}
	if err := d.feedback.Notify(p); err != nil {
		log.Debug().Err(err).Str("component", "shake").Int("count", p.Count).Msg("feedback failed")
	}
}
