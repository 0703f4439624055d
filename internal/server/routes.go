package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"shakegame/internal/config"
	"shakegame/internal/db"
	"shakegame/internal/gameclock"
	"shakegame/internal/kvstore"
	"shakegame/internal/metrics"
	"shakegame/internal/ranking"
	"shakegame/internal/rooms"
	"shakegame/internal/session"
	"shakegame/internal/shake"
)

func Run() error {
	appCfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(appCfg.LogLevel, appCfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	m := metrics.New()

	srv := &Server{
		Metrics:     m,
		Clock:       clock,
		AnyOrigin:   len(appCfg.CORSOrigins) == 1 && appCfg.CORSOrigins[0] == "*",
		CORSOrigins: appCfg.CORSOrigins,
	}

	var kv kvstore.Store
	// Optional database connection
	if appCfg.DatabaseURL != "" {
		database, err := db.Connect(appCfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Str("component", "db").Msg("failed to connect, falling back to local storage")
		} else if err := database.Migrate(); err != nil {
			log.Error().Err(err).Str("component", "db").Msg("migration failed, falling back to local storage")
			database.Close()
		} else {
			defer database.Close()
			srv.DB = database
			kv = database
		}
	}
	if kv == nil {
		kv, err = localStore(appCfg.DataDir)
		if err != nil {
			return err
		}
	}

	srv.Rankings = ranking.NewStore(kv, clock)
	srv.Rooms = rooms.NewStore(ctx, roomConfig(appCfg.Game), clock, srv.Rankings, m)
	defer srv.Rooms.CloseAll()

	httpSrv := &http.Server{
		Addr:              "0.0.0.0:" + appCfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msgf("server listening on http://localhost:%s", appCfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func localStore(dir string) (kvstore.Store, error) {
	if dir == "" {
		log.Warn().Str("component", "kvstore").Msg("DATA_DIR not set, rankings are kept in memory only")
		return kvstore.NewMemory(), nil
	}
	f, err := kvstore.NewFile(dir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("component", "kvstore").Str("dir", dir).Msg("storing rankings on disk")
	return f, nil
}

func roomConfig(t config.Tuning) rooms.Config {
	return rooms.Config{
		Session: session.Config{
			Clock: gameclock.Config{
				CountdownSecs: t.CountdownSecs,
				PlaySecs:      t.PlayDurationSecs,
			},
			Shake: shake.Config{
				Threshold:         t.ShakeThreshold,
				Cooldown:          time.Duration(t.ShakeCooldownMs) * time.Millisecond,
				StrongMultiplier:  shake.DefaultStrongMultiplier,
				MilestoneInterval: t.MilestoneInterval,
			},
		},
		SensorInterval: time.Duration(t.SensorUpdateIntervalMs) * time.Millisecond,
	}
}

// Routes returns the HTTP handler for the whole API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /play", s.handlePlay)
	mux.HandleFunc("GET /rooms/{code}", s.handleRoom)
	mux.HandleFunc("GET /rooms/{code}/events", s.handleEvents)
	mux.HandleFunc("GET /rankings", s.handleRankings)
	mux.HandleFunc("GET /rankings/rank", s.handleRank)
	mux.HandleFunc("GET /rankings/best", s.handleBest)
	mux.HandleFunc("DELETE /rankings", s.handleClearRankings)
	mux.HandleFunc("GET /players/{nickname}", s.handlePlayer)
	mux.HandleFunc("GET /nickname", s.handleGetNickname)
	mux.HandleFunc("PUT /nickname", s.handlePutNickname)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}
