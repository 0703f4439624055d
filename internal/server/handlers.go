package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"shakegame/internal/db"
	"shakegame/internal/events"
	"shakegame/internal/metrics"
	"shakegame/internal/ranking"
	"shakegame/internal/rooms"
	"shakegame/internal/sensor"
	"shakegame/internal/wshub"
)

type Server struct {
	Rooms       *rooms.Store
	Rankings    *ranking.Store
	DB          *db.DB // nil if no database configured
	Metrics     *metrics.Metrics
	Clock       clockwork.Clock
	AnyOrigin   bool
	CORSOrigins []string
}

// device adapts a room to the messages its websocket connection sends.
type device struct {
	room  *rooms.Room
	clock clockwork.Clock
}

func (d device) Sample(s sensor.Sample) {
	d.room.Touch(d.clock.Now())
	d.room.Feed.Push(s)
}

func (d device) Start(ctx context.Context, nickname string) error {
	d.room.Touch(d.clock.Now())
	return d.room.Session.Start(ctx, nickname)
}

func (d device) Reset(ctx context.Context) error {
	d.room.Touch(d.clock.Now())
	return d.room.Session.Reset(ctx)
}

// handlePlay upgrades to a websocket and runs one game room for the life of
// the connection. Closing the connection tears the room down.
func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.AnyOrigin,
		OriginPatterns:     s.originPatterns(),
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "play").Msg("websocket accept failed")
		return
	}

	room, err := s.Rooms.Create()
	if err != nil {
		log.Error().Err(err).Str("component", "play").Msg("could not create room")
		conn.Close(websocket.StatusInternalError, "could not create room")
		return
	}
	defer s.Rooms.Delete(room.Code)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := wshub.NewClient(room.Code, conn)
	client.Queue(wshub.NewHello(room.Code, room.Feed.Interval()))
	if snap, err := room.Session.Snapshot(ctx); err == nil {
		client.Queue(events.StateChanged(snap))
	}

	evs := room.Broadcaster.Subscribe()
	go client.Forward(ctx, evs)
	go client.WritePump(ctx)

	log.Info().Str("component", "play").Str("room", room.Code).Msg("device connected")
	if err := client.ReadPump(ctx, device{room: room, clock: s.Clock}); err != nil {
		log.Debug().Err(err).Str("component", "play").Str("room", room.Code).Msg("connection ended")
	}
	log.Info().Str("component", "play").Str("room", room.Code).Msg("device disconnected")
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) originPatterns() []string {
	if s.AnyOrigin {
		return nil
	}
	patterns := make([]string, 0, len(s.CORSOrigins))
	for _, o := range s.CORSOrigins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		patterns = append(patterns, o)
	}
	return patterns
}

func (s *Server) room(w http.ResponseWriter, r *http.Request) *rooms.Room {
	code := strings.ToUpper(r.PathValue("code"))
	room := s.Rooms.Get(code)
	if room == nil {
		http.Error(w, "Room not found", http.StatusNotFound)
	}
	return room
}

type roomView struct {
	Code           string    `json:"code"`
	CreatedAt      time.Time `json:"createdAt"`
	DroppedSamples int       `json:"droppedSamples"`
	events.Snapshot
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room := s.room(w, r)
	if room == nil {
		return
	}
	snap, err := room.Session.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "Room closed", http.StatusGone)
		return
	}
	writeJSON(w, http.StatusOK, roomView{
		Code:           room.Code,
		CreatedAt:      room.CreatedAt,
		DroppedSamples: room.Feed.Dropped(),
		Snapshot:       snap,
	})
}

// handleEvents streams a room's events to a second screen as Server-Sent
// Events, starting with the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	room := s.room(w, r)
	if room == nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	msgChan := room.Broadcaster.Subscribe()
	defer room.Broadcaster.Unsubscribe(msgChan)

	snap, err := room.Session.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "Room closed", http.StatusGone)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writeSSE(w, events.StateChanged(snap))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-msgChan:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("component", "events").Msg("marshal error")
		return
	}
	fmt.Fprintf(w, "event: %s\n", ev.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	limit := ranking.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.Rankings.TopRankings(r.Context(), limit)
	if err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	score, err := strconv.Atoi(r.URL.Query().Get("score"))
	if err != nil || score < 0 {
		http.Error(w, "Invalid score", http.StatusBadRequest)
		return
	}
	rank, err := s.Rankings.Rank(r.Context(), score)
	if err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"score": score, "rank": rank})
}

func (s *Server) handleBest(w http.ResponseWriter, r *http.Request) {
	nickname := r.URL.Query().Get("nickname")
	if nickname == "" {
		http.Error(w, "Missing nickname", http.StatusBadRequest)
		return
	}
	best, ok, err := s.Rankings.UserBestScore(r.Context(), nickname)
	if err != nil {
		s.storageError(w, err)
		return
	}
	if !ok {
		http.Error(w, "No scores for nickname", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nickname": nickname, "bestScore": best})
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	nickname := r.PathValue("nickname")
	p, ok, err := s.Rankings.Profile(r.Context(), nickname)
	if err != nil {
		s.storageError(w, err)
		return
	}
	if !ok {
		http.Error(w, "Player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleClearRankings(w http.ResponseWriter, r *http.Request) {
	if err := s.Rankings.ClearAll(r.Context()); err != nil {
		s.storageError(w, err)
		return
	}
	log.Info().Str("component", "rankings").Msg("rankings cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetNickname(w http.ResponseWriter, r *http.Request) {
	name, ok, err := s.Rankings.LastNickname(r.Context())
	if err != nil {
		s.storageError(w, err)
		return
	}
	if !ok {
		http.Error(w, "No nickname saved", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nickname": name})
}

func (s *Server) handlePutNickname(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid body", http.StatusBadRequest)
		return
	}
	name, err := ranking.ValidateNickname(body.Nickname)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Rankings.SaveNickname(r.Context(), name); err != nil {
		s.storageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nickname": name})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_error", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) storageError(w http.ResponseWriter, err error) {
	s.Metrics.RankingError()
	log.Error().Err(err).Str("component", "rankings").Msg("storage error")
	msg := "Storage error"
	if errors.Is(err, ranking.ErrCorruptData) || errors.Is(err, ranking.ErrUnsupportedVersion) {
		msg = "Ranking data is unreadable"
	}
	http.Error(w, msg, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("writing response")
	}
}
