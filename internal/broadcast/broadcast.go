package broadcast

import (
	"sync"

	"shakegame/internal/events"
)

// Broadcaster fans events out to subscribers. Slow subscribers miss events
// rather than blocking the publisher.
type Broadcaster struct {
	Mu      sync.Mutex
	Clients map[chan events.Event]bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		Clients: make(map[chan events.Event]bool),
	}
}

func (b *Broadcaster) Subscribe() chan events.Event {
	ch := make(chan events.Event, 32)
	b.Mu.Lock()
	b.Clients[ch] = true
	b.Mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(ch chan events.Event) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	if _, ok := b.Clients[ch]; !ok {
		return
	}
	delete(b.Clients, ch)
	close(ch)
}

func (b *Broadcaster) Publish(ev events.Event) {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	for ch := range b.Clients {
		select {
		case ch <- ev:
		default:
			// skip clients with full channels
		}
	}
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.Mu.Lock()
	defer b.Mu.Unlock()
	for ch := range b.Clients {
		delete(b.Clients, ch)
		close(ch)
	}
}
