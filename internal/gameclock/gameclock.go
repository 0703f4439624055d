package gameclock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type Phase string

const (
	PhaseIdle      = Phase("idle")
	PhaseCountdown = Phase("countdown")
	PhasePlaying   = Phase("playing")
	PhaseFinished  = Phase("finished")
)

type Config struct {
	CountdownSecs int
	PlaySecs      int
}

func DefaultConfig() Config {
	return Config{
		CountdownSecs: 3,
		PlaySecs:      10,
	}
}

type State struct {
	Phase              Phase `json:"phase"`
	CountdownRemaining int   `json:"countdown"`
	TimeRemaining      int   `json:"timeRemaining"`
}

// Transition describes a phase change caused by Start or Tick.
type Transition struct {
	From Phase
	To   Phase
}

// Clock is the countdown → playing → finished state machine. It is driven by
// calling Tick whenever C delivers; it is not safe for concurrent use.
type Clock struct {
	cfg    Config
	clock  clockwork.Clock
	state  State
	ticker clockwork.Ticker
}

func New(cfg Config, clock clockwork.Clock) *Clock {
	return &Clock{
		cfg:   cfg,
		clock: clock,
		state: State{Phase: PhaseIdle},
	}
}

func (c *Clock) State() State {
	return c.state
}

func (c *Clock) Phase() Phase {
	return c.state.Phase
}

// C delivers one value per elapsed second while the clock runs. It is nil when
// no ticker is attached, so a select on it never fires after Reset or finish.
func (c *Clock) C() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.Chan()
}

// Start begins the countdown. It only works from idle.
func (c *Clock) Start() (Transition, bool) {
	if c.state.Phase != PhaseIdle {
		return Transition{}, false
	}
	if c.cfg.CountdownSecs <= 0 {
		c.state = State{Phase: PhasePlaying, TimeRemaining: c.cfg.PlaySecs}
	} else {
		c.state = State{Phase: PhaseCountdown, CountdownRemaining: c.cfg.CountdownSecs}
	}
	c.attach()
	return Transition{From: PhaseIdle, To: c.state.Phase}, true
}

// Tick advances the clock by one second and reports a phase change if one
// happened.
func (c *Clock) Tick() (Transition, bool) {
	switch c.state.Phase {
	case PhaseCountdown:
		c.state.CountdownRemaining--
		if c.state.CountdownRemaining > 0 {
			return Transition{}, false
		}
		c.state = State{Phase: PhasePlaying, TimeRemaining: c.cfg.PlaySecs}
		return Transition{From: PhaseCountdown, To: PhasePlaying}, true
	case PhasePlaying:
		c.state.TimeRemaining--
		if c.state.TimeRemaining > 0 {
			return Transition{}, false
		}
		c.state = State{Phase: PhaseFinished}
		c.detach()
		return Transition{From: PhasePlaying, To: PhaseFinished}, true
	}
	return Transition{}, false
}

// Reset returns to idle and drops the ticker. Calling it while idle is a no-op.
func (c *Clock) Reset() (Transition, bool) {
	c.detach()
	if c.state.Phase == PhaseIdle {
		return Transition{}, false
	}
	from := c.state.Phase
	c.state = State{Phase: PhaseIdle}
	return Transition{From: from, To: PhaseIdle}, true
}

func (c *Clock) attach() {
	c.detach()
	c.ticker = c.clock.NewTicker(time.Second)
}

func (c *Clock) detach() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	// drain a tick that was already delivered
	select {
	case <-c.ticker.Chan():
	default:
	}
	c.ticker = nil
}
