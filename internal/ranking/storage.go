package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"shakegame/internal/kvstore"
)

const (
	StorageKey   = "@shake_game/ranking"
	NicknameKey  = "@shake_game/nickname"
	DataVersion  = 1
	DefaultLimit = 10
)

var (
	ErrCorruptData        = errors.New("ranking data is corrupt")
	ErrUnsupportedVersion = errors.New("ranking data version is not supported")
)

// Store is the append-only ranking collection. Every operation holds mu for
// its whole read-modify-write cycle, so concurrent AddEntry calls never
// interleave.
type Store struct {
	mu    sync.Mutex
	kv    kvstore.Store
	clock clockwork.Clock
	newID func() string
}

func NewStore(kv kvstore.Store, clock clockwork.Clock) *Store {
	return &Store{
		kv:    kv,
		clock: clock,
		newID: func() string { return uuid.New().String() },
	}
}

func (s *Store) load(ctx context.Context) (Data, error) {
	raw, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return Data{}, fmt.Errorf("loading rankings: %w", err)
	}
	if !ok || raw == "" {
		return Data{Version: DataVersion, Entries: []Entry{}, LastUpdated: s.clock.Now()}, nil
	}

	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if data.Version > DataVersion {
		return Data{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data.Version)
	}
	return data, nil
}

func (s *Store) save(ctx context.Context, data Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding rankings: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(raw)); err != nil {
		return fmt.Errorf("saving rankings: %w", err)
	}
	return nil
}

func (s *Store) AddEntry(ctx context.Context, nickname string, score int, playedAt time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, _, err := s.add(ctx, nickname, score, playedAt)
	return entry, err
}

// AddAndRank inserts an entry and returns its rank computed from a view that
// already contains it.
func (s *Store) AddAndRank(ctx context.Context, nickname string, score int, playedAt time.Time) (Entry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, data, err := s.add(ctx, nickname, score, playedAt)
	if err != nil {
		return Entry{}, 0, err
	}
	return entry, rankOf(data.Entries, score), nil
}

func (s *Store) add(ctx context.Context, nickname string, score int, playedAt time.Time) (Entry, Data, error) {
	if score < 0 {
		return Entry{}, Data{}, fmt.Errorf("score must not be negative, got %d", score)
	}
	data, err := s.load(ctx)
	if err != nil {
		return Entry{}, Data{}, err
	}
	entry := Entry{
		ID:       s.newID(),
		Nickname: nickname,
		Score:    score,
		PlayedAt: playedAt,
	}
	data.Version = DataVersion
	data.Entries = append(data.Entries, entry)
	data.LastUpdated = s.clock.Now()
	if err := s.save(ctx, data); err != nil {
		return Entry{}, Data{}, err
	}
	return entry, data, nil
}

// TopRankings returns entries by score, highest first, ties in insertion
// order. A limit <= 0 returns every entry.
func (s *Store) TopRankings(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	ranked := make([]Entry, len(data.Entries))
	copy(ranked, data.Entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Rank is the competition rank a score would have: one plus the number of
// entries scoring strictly higher, so ties share the better rank.
func (s *Store) Rank(ctx context.Context, score int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	return rankOf(data.Entries, score), nil
}

func rankOf(entries []Entry, score int) int {
	higher := 0
	for _, e := range entries {
		if e.Score > score {
			higher++
		}
	}
	return higher + 1
}

// UserBestScore reports the highest score recorded for nickname, matched
// exactly.
func (s *Store) UserBestScore(ctx context.Context, nickname string) (int, bool, error) {
	p, ok, err := s.Profile(ctx, nickname)
	return p.BestScore, ok, err
}

func (s *Store) Profile(ctx context.Context, nickname string) (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.load(ctx)
	if err != nil {
		return Profile{}, false, err
	}

	p := Profile{Nickname: nickname}
	for _, e := range data.Entries {
		if e.Nickname != nickname {
			continue
		}
		if p.TotalPlays == 0 || e.Score > p.BestScore {
			p.BestScore = e.Score
		}
		if p.TotalPlays == 0 || e.PlayedAt.Before(p.CreatedAt) {
			p.CreatedAt = e.PlayedAt
		}
		p.TotalPlays++
	}
	if p.TotalPlays == 0 {
		return Profile{Nickname: nickname}, false, nil
	}
	return p, true, nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, StorageKey); err != nil {
		return fmt.Errorf("clearing rankings: %w", err)
	}
	return nil
}
