package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSample_Delta(t *testing.T) {
	a := Sample{X: 0, Y: 0, Z: 0}
	b := Sample{X: 3, Y: 4, Z: 0}
	if got := b.Delta(a); got != 5 {
		t.Errorf("Delta = %v, want 5", got)
	}
	if got := a.Delta(b); got != 5 {
		t.Errorf("Delta reversed = %v, want 5", got)
	}
	if got := b.Delta(b); got != 0 {
		t.Errorf("Delta of same sample = %v, want 0", got)
	}
}

func TestNewFeed_DefaultInterval(t *testing.T) {
	f := NewFeed(clockwork.NewFakeClock(), 0)
	if f.Interval() != DefaultInterval {
		t.Errorf("Interval = %v, want %v", f.Interval(), DefaultInterval)
	}
}

func TestFeed_PushWithoutSubscriberDrops(t *testing.T) {
	f := NewFeed(clockwork.NewFakeClock(), 0)
	f.OnDrop(func() { t.Error("OnDrop called without a subscriber") })
	if f.Push(Sample{X: 1}) {
		t.Error("Push() with no subscriber should report false")
	}
	// nobody was behind, so this is not back-pressure
	if f.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", f.Dropped())
	}
}

func TestFeed_PushStampsReceiptTime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000))
	f := NewFeed(clock, 0)
	sub, err := f.Subscribe()
	if err != nil {
		t.Fatal(err)
	}

	f.Push(Sample{X: 1})
	clock.Advance(250 * time.Millisecond)
	f.Push(Sample{X: 2})

	r1 := <-sub.C()
	r2 := <-sub.C()
	if r1.X != 1 || !r1.At.Equal(time.UnixMilli(1_000)) {
		t.Errorf("first reading = %+v", r1)
	}
	if r2.X != 2 || !r2.At.Equal(time.UnixMilli(1_250)) {
		t.Errorf("second reading = %+v", r2)
	}
}

func TestFeed_CloseSubscriptionIsIdempotent(t *testing.T) {
	f := NewFeed(clockwork.NewFakeClock(), 0)
	sub, _ := f.Subscribe()

	sub.Close()
	sub.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("channel should be closed after Close()")
	}
	if f.Push(Sample{X: 1}) {
		t.Error("Push() after Close() should be dropped")
	}
}

func TestFeed_ResubscribeDetachesPrevious(t *testing.T) {
	f := NewFeed(clockwork.NewFakeClock(), 0)
	first, _ := f.Subscribe()
	second, _ := f.Subscribe()

	if _, ok := <-first.C(); ok {
		t.Error("first subscription should be detached")
	}
	// closing a stale subscription must not detach the live one
	first.Close()

	if !f.Push(Sample{Z: 9}) {
		t.Fatal("Push() should reach the second subscription")
	}
	r := <-second.C()
	if r.Z != 9 {
		t.Errorf("reading = %+v, want Z=9", r)
	}
}

func TestFeed_FullBufferCountsDrops(t *testing.T) {
	f := NewFeed(clockwork.NewFakeClock(), 0)
	hooked := 0
	f.OnDrop(func() { hooked++ })
	if _, err := f.Subscribe(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		f.Push(Sample{X: float64(i)})
	}
	if f.Dropped() != 4 {
		t.Errorf("Dropped = %d, want 4", f.Dropped())
	}
	if hooked != 4 {
		t.Errorf("OnDrop calls = %d, want 4", hooked)
	}
}

func TestFeed_ClosedIsUnavailable(t *testing.T) {
	f := NewFeed(clockwork.NewFakeClock(), 0)
	sub, _ := f.Subscribe()
	f.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("subscription should be detached by Feed.Close()")
	}
	if _, err := f.Subscribe(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Subscribe() after Close error = %v, want ErrUnavailable", err)
	}
}
