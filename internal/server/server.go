// Package server exposes the game core over WebSocket. Each connection gets
// a read and a write pump; incoming envelopes are routed to the matchmaker
// and the player's table, outgoing events fan out through per-connection
// send buffers.
package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sixmax/plosrv/internal/engine"
	"github.com/sixmax/plosrv/internal/matchmaker"
	"github.com/sixmax/plosrv/internal/protocol"
	"github.com/sixmax/plosrv/internal/table"
)

// Server is the WebSocket front end over one matchmaker
type Server struct {
	cfg      *Config
	logger   *log.Logger
	mm       *matchmaker.Matchmaker
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu          sync.Mutex
	conns       map[*Connection]struct{}
	maintenance protocol.MaintenanceStatusData
}

// New creates a server with its own matchmaker
func New(cfg *Config, logger *log.Logger, clock quartz.Clock, rng *rand.Rand, records protocol.RecordSink) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*Connection]struct{}),
	}
	s.mm = matchmaker.New(matchmaker.Config{
		ActionTimeout:  cfg.ActionTimeout(),
		InterHandDelay: cfg.InterHandDelay(),
		IdleTimeout:    cfg.IdleTimeout(),
		BotFill:        cfg.Game.BotFill,
		RakeFor: func(key table.Key) engine.RakeConfig {
			for _, st := range cfg.Stakes {
				if st.Key() == key {
					return cfg.RakeFor(st)
				}
			}
			return engine.RakeConfig{}
		},
	}, clock, rng, logger, records)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	s.httpSrv = &http.Server{Addr: cfg.Addr(), Handler: mux}
	return s
}

// Matchmaker exposes the underlying matchmaker, for tests and tooling
func (s *Server) Matchmaker() *matchmaker.Matchmaker { return s.mm }

// Handler returns the HTTP handler, for mounting under a test server
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.cfg.Addr())
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, closes the live ones and tears the
// tables down
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	err := s.httpSrv.Shutdown(ctx)

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}

	s.mm.Close()
	return err
}

// SetMaintenance toggles maintenance mode and announces it everywhere
func (s *Server) SetMaintenance(active bool, message string) {
	s.mu.Lock()
	s.maintenance = protocol.MaintenanceStatusData{
		IsActive: active,
		Message:  message,
	}
	if active {
		s.maintenance.ActivatedAt = time.Now()
	}
	status := s.maintenance
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	msg := protocol.MustMessage(protocol.EventMaintenanceStatus, status)
	for _, c := range conns {
		_ = c.Send(msg)
	}
	s.logger.Info("maintenance status changed", "active", active)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "err", err)
		return
	}

	// A returning client presents its previous id to pick its seat back up.
	playerID := r.URL.Query().Get("player")
	resuming := playerID != ""
	if playerID == "" {
		playerID = uuid.NewString()
	}
	conn := newConnection(ws, playerID, s, s.logger)

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	status := s.maintenance
	s.mu.Unlock()

	conn.start()
	_ = conn.Send(protocol.MustMessage(protocol.EventConnectionEstablished, protocol.ConnectionEstablishedData{
		PlayerID: playerID,
	}))
	if status.IsActive {
		_ = conn.Send(protocol.MustMessage(protocol.EventMaintenanceStatus, status))
	}
	if resuming {
		// Best effort: the seat may be long gone.
		_ = s.mm.Reconnect(playerID, conn)
	}
	s.logger.Info("client connected", "player", playerID, "resuming", resuming)
}

func (s *Server) dropConnection(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.mm.Disconnect(c.playerID)
	s.logger.Info("client disconnected", "player", c.playerID)
}
