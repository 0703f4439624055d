package rooms

import (
	"context"
	"sync"
	"time"

	"shakegame/internal/broadcast"
	"shakegame/internal/sensor"
	"shakegame/internal/session"
)

// Room is one device's live game plus the feeds around it: the sensor feed
// its connection pushes into and the broadcaster views subscribe to.
type Room struct {
	Code        string
	Session     *session.Session
	Feed        *sensor.Feed
	Broadcaster *broadcast.Broadcaster
	CreatedAt   time.Time

	mu       sync.Mutex
	lastSeen time.Time
	cancel   context.CancelFunc
}

// Touch marks the room as in use so the sweeper keeps it.
func (r *Room) Touch(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = now
}

func (r *Room) LastSeen() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeen
}

func (r *Room) close() {
	r.Feed.Close()
	r.Session.Close()
	r.cancel()
	r.Broadcaster.Close()
}
