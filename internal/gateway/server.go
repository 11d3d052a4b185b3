// Package gateway exposes the session hub over WebSocket and serves the
// read-only HTTP API for health, lobby browsing and match statistics.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/session"
	"github.com/cory-johannsen/jobwars/internal/stats"
)

// Sessions is the part of the session hub the gateway drives.
type Sessions interface {
	Connect(c session.Conn)
	Deliver(c session.Conn, frame []byte)
	Disconnect(c session.Conn)
	Health(ctx context.Context) (session.Health, error)
	WaitingRooms(ctx context.Context) ([]session.RoomSummary, error)
}

// StatsReader is the match history the API reads from.
type StatsReader interface {
	RecentMatches(ctx context.Context, limit int) ([]stats.Match, error)
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]stats.Match, error)
	PlayerStats(ctx context.Context, playerID string) (stats.PlayerStats, error)
	Leaderboard(ctx context.Context, limit int) ([]stats.PlayerStats, error)
	Totals(ctx context.Context) (stats.Totals, error)
}

// Server is the HTTP listener for both the WebSocket endpoint and the API.
type Server struct {
	cfg      config.HTTPConfig
	sessions Sessions
	stats    StatsReader
	logger   *zap.Logger
	upgrader websocket.Upgrader
	started  time.Time
	srv      *http.Server
}

// NewServer creates a Server.
//
// Precondition: sessions, reader and logger must be non-nil.
func NewServer(cfg config.HTTPConfig, sessions Sessions, reader StatsReader, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		stats:    reader,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		started: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /api/stats", s.totals)
	mux.HandleFunc("GET /api/leaderboard", s.leaderboard)
	mux.HandleFunc("GET /api/matches/recent", s.recentMatches)
	mux.HandleFunc("GET /api/player/{id}", s.player)
	mux.HandleFunc("GET /api/rooms", s.rooms)
	return withCORS(mux)
}

// Start listens and serves until Stop is called.
//
// Postcondition: returns nil after a graceful Stop, or the listener error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// Stop shuts the listener down, waiting up to the configured timeout for
// in-flight requests. Hijacked WebSocket connections are closed by the hub.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("gateway shutdown", zap.Error(err))
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request.
		s.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	c := newWSConn(ws, s.cfg, s.logger)
	c.logger.Debug("websocket connected", zap.String("remote", r.RemoteAddr))
	s.sessions.Connect(c)
	go c.writePump()
	go c.readPump(s.sessions)
}

type healthResponse struct {
	Status      string  `json:"status"`
	Rooms       int     `json:"rooms"`
	QueueLength int     `json:"queueLength"`
	Connections int     `json:"connections"`
	Uptime      float64 `json:"uptime"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h, err := s.sessions.Health(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Rooms:       h.Rooms,
		QueueLength: h.QueueLength,
		Connections: h.Connections,
		Uptime:      time.Since(s.started).Seconds(),
	})
}

func (s *Server) totals(w http.ResponseWriter, r *http.Request) {
	t, err := s.stats.Totals(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.stats.Leaderboard(r.Context(), stats.LeaderboardSize)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(board))
}

func (s *Server) recentMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.stats.RecentMatches(r.Context(), stats.RecentMatchesLimit)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(matches))
}

// playerResponse is a player's aggregate with their latest matches.
type playerResponse struct {
	stats.PlayerStats
	RecentMatches []stats.Match `json:"recent_matches"`
}

func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ps, err := s.stats.PlayerStats(r.Context(), id)
	if errors.Is(err, stats.ErrPlayerNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Player not found"})
		return
	}
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	matches, err := s.stats.PlayerMatches(r.Context(), id, stats.PlayerMatchesLimit)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, playerResponse{PlayerStats: ps, RecentMatches: nonNil(matches)})
}

func (s *Server) rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.sessions.WaitingRooms(r.Context())
	if err != nil {
		s.fail(w, r, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rooms))
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// withCORS allows any origin and answers preflight requests directly.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
