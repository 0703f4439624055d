// Package sensor models the accelerometer input of a device as a cancellable
// subscription. Readings arrive at a nominal interval but the timing of real
// delivery is irregular, so every reading carries its own receipt time.
package sensor

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrUnavailable is returned by Subscribe when no sensor can be attached.
var ErrUnavailable = errors.New("sensor unavailable")

const DefaultInterval = 100 * time.Millisecond

// Sample is one 3-axis acceleration reading.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Delta returns the Euclidean norm of the per-axis difference s - prev.
func (s Sample) Delta(prev Sample) float64 {
	dx := s.X - prev.X
	dy := s.Y - prev.Y
	dz := s.Z - prev.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Reading is a sample stamped with the time it was received.
type Reading struct {
	Sample
	At time.Time
}

type Source interface {
	Subscribe() (Subscription, error)
}

// Subscription delivers readings until Close is called. Close is idempotent.
type Subscription interface {
	C() <-chan Reading
	Close()
}

// Feed is a Source fed by Push, typically from a network connection reading
// device messages. At most one subscription is attached at a time; pushes
// with no subscriber attached are dropped.
type Feed struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	interval time.Duration
	current  *feedSub
	closed   bool
	dropped  int
	onDrop   func()
}

func NewFeed(clock clockwork.Clock, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feed{clock: clock, interval: interval}
}

// Interval is the sampling interval the device is asked to use.
func (f *Feed) Interval() time.Duration {
	return f.interval
}

// Subscribe attaches a new subscription, detaching any previous one.
func (f *Feed) Subscribe() (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrUnavailable
	}
	if f.current != nil {
		f.current.detach()
	}
	// A few intervals of slack so a briefly busy consumer does not drop.
	sub := &feedSub{feed: f, ch: make(chan Reading, 16)}
	f.current = sub
	return sub, nil
}

// Push stamps s with the current time and hands it to the attached
// subscription. It never blocks; it reports whether the reading was queued.
func (f *Feed) Push(s Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return false
	}
	select {
	case f.current.ch <- Reading{Sample: s, At: f.clock.Now()}:
		return true
	default:
		f.dropped++
		if f.onDrop != nil {
			f.onDrop()
		}
		return false
	}
}

// OnDrop registers fn to be called for every reading discarded because the
// subscriber fell behind. fn runs with the feed locked and must not call back
// into it.
func (f *Feed) OnDrop(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDrop = fn
}

// Dropped counts readings discarded because the subscriber fell behind.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close detaches the current subscription and makes further Subscribe calls
// fail with ErrUnavailable.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.current != nil {
		f.current.detach()
		f.current = nil
	}
}

type feedSub struct {
	feed *Feed
	ch   chan Reading
	once sync.Once
}

func (s *feedSub) C() <-chan Reading {
	return s.ch
}

func (s *feedSub) Close() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if s.feed.current == s {
		s.feed.current = nil
	}
	s.detach()
}

// detach must be called with feed.mu held.
func (s *feedSub) detach() {
	s.once.Do(func() { close(s.ch) })
}
