package rooms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"shakegame/internal/broadcast"
	"shakegame/internal/metrics"
	"shakegame/internal/ranking"
	"shakegame/internal/sensor"
	"shakegame/internal/session"
)

const (
	staleTTL      = 1 * time.Hour
	sweepInterval = 5 * time.Minute
)

type Config struct {
	Session        session.Config
	SensorInterval time.Duration
}

type Store struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	cfg      Config
	clock    clockwork.Clock
	rankings *ranking.Store
	metrics  *metrics.Metrics
}

// NewStore starts a sweeper that closes rooms unused for an hour. It stops
// when ctx is done.
func NewStore(ctx context.Context, cfg Config, clock clockwork.Clock, rankings *ranking.Store, m *metrics.Metrics) *Store {
	s := &Store{
		rooms:    make(map[string]*Room),
		cfg:      cfg,
		clock:    clock,
		rankings: rankings,
		metrics:  m,
	}
	go s.sweepStale(ctx)
	return s
}

func (s *Store) Create() (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Try up to 10 times to generate a unique code
	for range 10 {
		code, err := GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("generating room code: %w", err)
		}
		if _, exists := s.rooms[code]; exists {
			continue
		}

		feed := sensor.NewFeed(s.clock, s.cfg.SensorInterval)
		feed.OnDrop(s.metrics.SensorDropped)
		b := broadcast.NewBroadcaster()
		sess := session.New(code, s.cfg.Session, s.clock, feed, s.rankings, b, s.metrics)
		ctx, cancel := context.WithCancel(context.Background())
		go sess.Run(ctx)

		now := s.clock.Now()
		room := &Room{
			Code:        code,
			Session:     sess,
			Feed:        feed,
			Broadcaster: b,
			CreatedAt:   now,
			lastSeen:    now,
			cancel:      cancel,
		}
		s.rooms[code] = room
		s.metrics.SessionOpened()
		log.Info().Str("component", "rooms").Str("room", code).Msg("room created")
		return room, nil
	}
	return nil, fmt.Errorf("failed to generate unique room code after 10 attempts")
}

func (s *Store) Get(code string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[code]
}

// Delete closes the room's session; no timer or sensor callback runs after
// it returns.
func (s *Store) Delete(code string) {
	s.mu.Lock()
	room, ok := s.rooms[code]
	delete(s.rooms, code)
	s.mu.Unlock()

	if ok {
		room.close()
		s.metrics.SessionClosed()
		log.Info().Str("component", "rooms").Str("room", code).Msg("room closed")
	}
}

func (s *Store) List() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		list = append(list, r)
	}
	return list
}

// CloseAll closes every room, used on shutdown.
func (s *Store) CloseAll() {
	for _, r := range s.List() {
		s.Delete(r.Code)
	}
}

func (s *Store) sweepStale(ctx context.Context) {
	ticker := s.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.clock.Now()
	for _, r := range s.List() {
		if now.Sub(r.LastSeen()) > staleTTL {
			s.Delete(r.Code)
		}
	}
}
