package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
	"github.com/harun/magpie/internal/metrics"
)

const clientSendBuffer = 32

// Status is the snapshot served by /status.
type Status struct {
	Uptime          string   `json:"uptime"`
	Iterations      uint64   `json:"iterations"`
	ActionPasses    uint64   `json:"action_passes"`
	PostCycles      uint64   `json:"post_cycles"`
	PostsScheduled  uint64   `json:"posts_scheduled"`
	LLMProviders    []string `json:"llm_providers"`
	VectorProviders []string `json:"vector_providers"`
	QueuePending    int      `json:"queue_pending"`
	StreamClients   int      `json:"stream_clients"`
}

// StatusFunc supplies the current snapshot; the agent provides it.
type StatusFunc func() Status

// client is one websocket subscriber.
type client struct {
	conn *websocket.Conn
	send chan Event
}

// Server serves the ops console endpoints.
type Server struct {
	cfg         config.ConsoleConfig
	logger      zerolog.Logger
	broadcaster *Broadcaster
	status      StatusFunc
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
	httpSrv     *http.Server
	started     time.Time
}

// NewServer builds the console server around a broadcaster.
func NewServer(cfg config.ConsoleConfig, b *Broadcaster, status StatusFunc, m *metrics.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger.With().Str("component", "console").Logger(),
		broadcaster: b,
		status:      status,
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The console binds to loopback by default; no origin policy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
}

// Handler returns the console routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Console server failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("Console listening")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var st Status
	if s.status != nil {
		st = s.status()
	}
	st.Uptime = time.Since(s.started).Round(time.Second).String()
	if s.broadcaster != nil {
		st.StreamClients = s.broadcaster.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// handleEvents upgrades to a websocket and streams agent events until the
// client goes away or falls behind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.Error(w, "event stream disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Event, clientSendBuffer),
	}
	id := s.broadcaster.register(c)

	// Reader: discard inbound frames, detect disconnect
	go func() {
		defer s.broadcaster.unregister(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Writer: drain the send buffer until it closes
	go func() {
		defer conn.Close()
		for event := range c.send {
			if err := conn.WriteJSON(event); err != nil {
				s.broadcaster.unregister(id)
				return
			}
		}
	}()
}
