// Package session runs one device's game. A single goroutine owns the game
// clock, the shake debouncer and the sensor subscription; commands, sensor
// readings and clock ticks all reach it through one select loop, so none of
// that state needs locking.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shakegame/internal/events"
	"shakegame/internal/gameclock"
	"shakegame/internal/metrics"
	"shakegame/internal/ranking"
	"shakegame/internal/sensor"
	"shakegame/internal/shake"
)

var (
	ErrAlreadyStarted = errors.New("game already started")
	ErrClosed         = errors.New("session closed")
)

type Publisher interface {
	Publish(ev events.Event)
}

type Config struct {
	Clock gameclock.Config
	Shake shake.Config
}

func DefaultConfig() Config {
	return Config{
		Clock: gameclock.DefaultConfig(),
		Shake: shake.DefaultConfig(),
	}
}

type Session struct {
	clock    clockwork.Clock
	sensors  sensor.Source
	rankings *ranking.Store
	pub      Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// owned by the Run goroutine
	game      *gameclock.Clock
	debouncer *shake.Debouncer
	sub       sensor.Subscription
	nickname  string
	result    *events.Result

	inbox     chan command
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type command interface{}

type startCmd struct {
	nickname string
	reply    chan error
}

type resetCmd struct {
	reply chan struct{}
}

type snapshotCmd struct {
	reply chan events.Snapshot
}

func New(id string, cfg Config, clock clockwork.Clock, sensors sensor.Source, rankings *ranking.Store, pub Publisher, m *metrics.Metrics) *Session {
	s := &Session{
		clock:    clock,
		sensors:  sensors,
		rankings: rankings,
		pub:      pub,
		metrics:  m,
		logger:   log.With().Str("component", "session").Str("session", id).Logger(),
		game:     gameclock.New(cfg.Clock, clock),
		inbox:    make(chan command),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.debouncer = shake.New(cfg.Shake, shake.FeedbackFunc(s.feedback))
	return s
}

// Run processes events until ctx is cancelled or Close is called. On exit the
// clock is reset and the sensor detached, so nothing fires afterwards.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case cmd := <-s.inbox:
			s.handle(ctx, cmd)
		case now := <-s.game.C():
			s.tick(ctx, now)
		case r, ok := <-s.readings():
			if !ok {
				s.sub = nil
				continue
			}
			// A reading must not overtake a tick that is already due.
			select {
			case now := <-s.game.C():
				s.tick(ctx, now, r)
			default:
				s.process(r)
			}
		}
	}
}

// tick applies one clock tick at now. Readings already queued are handled in
// timestamp order around it: those taken at or before now count toward the
// phase that is ending, later ones are processed after the phase change.
func (s *Session) tick(ctx context.Context, now time.Time, pending ...sensor.Reading) {
	pending = append(pending, s.drainReadings()...)
	i := 0
	for ; i < len(pending) && !pending[i].At.After(now); i++ {
		s.process(pending[i])
	}

	tr, changed := s.game.Tick()
	if changed {
		s.enter(ctx, tr)
	}
	s.publishState()

	for _, r := range pending[i:] {
		s.process(r)
	}
}

// drainReadings takes every reading queued on the subscription without
// blocking.
func (s *Session) drainReadings() []sensor.Reading {
	var out []sensor.Reading
	for {
		select {
		case r, ok := <-s.readings():
			if !ok {
				s.sub = nil
				return out
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

// Close stops Run and waits for it to return. Run must have been started.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

// Start begins a game for nickname. An empty nickname falls back to the last
// saved one, then to ranking.AnonymousNickname.
func (s *Session) Start(ctx context.Context, nickname string) error {
	reply := make(chan error, 1)
	if err := s.send(ctx, startCmd{nickname: nickname, reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Reset abandons the current game and returns to idle.
func (s *Session) Reset(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := s.send(ctx, resetCmd{reply: reply}); err != nil {
		return err
	}
	<-reply
	return nil
}

func (s *Session) Snapshot(ctx context.Context) (events.Snapshot, error) {
	reply := make(chan events.Snapshot, 1)
	if err := s.send(ctx, snapshotCmd{reply: reply}); err != nil {
		return events.Snapshot{}, err
	}
	return <-reply, nil
}

func (s *Session) send(ctx context.Context, cmd command) error {
	select {
	case s.inbox <- cmd:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) readings() <-chan sensor.Reading {
	if s.sub == nil {
		return nil
	}
	return s.sub.C()
}

func (s *Session) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case startCmd:
		c.reply <- s.start(ctx, c.nickname)
	case resetCmd:
		s.reset(ctx)
		c.reply <- struct{}{}
	case snapshotCmd:
		c.reply <- s.snapshot()
	default:
		s.logger.Warn().Str("command", fmt.Sprintf("%T", cmd)).Msg("unknown command")
	}
}

func (s *Session) start(ctx context.Context, nickname string) error {
	if s.game.Phase() != gameclock.PhaseIdle {
		return ErrAlreadyStarted
	}
	name, err := s.resolveNickname(ctx, nickname)
	if err != nil {
		return err
	}

	s.nickname = name
	s.result = nil
	s.debouncer.Reset()
	tr, _ := s.game.Start()
	s.enter(ctx, tr)
	s.metrics.GameStarted()
	s.logger.Info().Str("nickname", name).Msg("game started")
	s.publishState()
	return nil
}

func (s *Session) resolveNickname(ctx context.Context, nickname string) (string, error) {
	if nickname != "" {
		name, err := ranking.ValidateNickname(nickname)
		if err != nil {
			return "", err
		}
		if err := s.rankings.SaveNickname(ctx, name); err != nil {
			s.logger.Warn().Err(err).Msg("could not remember nickname")
		}
		return name, nil
	}
	last, ok, err := s.rankings.LastNickname(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not load last nickname")
	}
	if ok {
		return last, nil
	}
	return ranking.AnonymousNickname, nil
}

func (s *Session) reset(ctx context.Context) {
	tr, changed := s.game.Reset()
	if changed {
		s.enter(ctx, tr)
	}
	s.debouncer.Reset()
	s.result = nil
	s.publishState()
}

// enter applies the side effects of a phase change. Phase changes are the
// only place the debouncer is switched on or off.
func (s *Session) enter(ctx context.Context, tr gameclock.Transition) {
	s.logger.Debug().Str("from", string(tr.From)).Str("to", string(tr.To)).Msg("phase change")

	switch tr.To {
	case gameclock.PhasePlaying:
		s.debouncer.Start()
		s.attachSensor()
	case gameclock.PhaseFinished:
		s.debouncer.Stop()
		s.detachSensor()
		s.commit(ctx)
	default:
		s.debouncer.Stop()
		s.detachSensor()
	}
}

// commit records the final count. Insert and rank lookup happen in one store
// call so the rank always includes this game.
func (s *Session) commit(ctx context.Context) {
	score := s.debouncer.Count()
	entry, rank, err := s.rankings.AddAndRank(ctx, s.nickname, score, s.clock.Now())
	if err != nil {
		s.metrics.RankingError()
		s.logger.Error().Err(err).Int("score", score).Msg("could not record score")
		s.publish(events.Failed(fmt.Errorf("recording score: %w", err)))
		return
	}
	s.result = &events.Result{Entry: entry, Rank: rank}
	s.metrics.GameFinished(score)
	s.logger.Info().Str("nickname", s.nickname).Int("score", score).Int("rank", rank).Msg("game finished")
	s.publish(events.Finished(*s.result))
}

func (s *Session) attachSensor() {
	if s.sensors == nil {
		s.metrics.SensorUnavailable()
		s.logger.Warn().Msg("no sensor source, playing without shakes")
		return
	}
	sub, err := s.sensors.Subscribe()
	if err != nil {
		s.metrics.SensorUnavailable()
		s.logger.Warn().Err(err).Msg("sensor unavailable, playing without shakes")
		return
	}
	s.sub = sub
}

func (s *Session) detachSensor() {
	if s.sub == nil {
		return
	}
	s.sub.Close()
	s.sub = nil
}

func (s *Session) process(r sensor.Reading) {
	s.metrics.Sample()
	if _, ok := s.debouncer.Process(r.Sample, r.At); ok {
		s.publishState()
	}
}

func (s *Session) feedback(p shake.Pulse) error {
	s.metrics.Shake(string(p.Tier))
	s.publish(events.Feedback(p))
	return nil
}

func (s *Session) teardown() {
	s.game.Reset()
	s.debouncer.Stop()
	s.detachSensor()
}

func (s *Session) snapshot() events.Snapshot {
	st := s.game.State()
	return events.Snapshot{
		Phase:         st.Phase,
		Countdown:     st.CountdownRemaining,
		TimeRemaining: st.TimeRemaining,
		Count:         s.debouncer.Count(),
		Nickname:      s.nickname,
		Result:        s.result,
	}
}

func (s *Session) publishState() {
	s.publish(events.StateChanged(s.snapshot()))
}

func (s *Session) publish(ev events.Event) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ev)
}
