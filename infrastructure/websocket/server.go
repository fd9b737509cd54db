// Package websocket is the client-facing transport: one websocket per
// connection, JSON envelopes in both directions.
package websocket

import (
	"collab-lab/contract"
	"collab-lab/domain"
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

type Config struct {
	BufferSize        int
	MaxMessageSize    int64
	MessagesPerSecond float64
	MessageBurst      int
	// AllowedOrigin is "*" or a single origin.
	AllowedOrigin string
}

type Server struct {
	log      *slog.Logger
	service  contract.ISessionService
	cfg      Config
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewServer binds every connection to ctx, which must live as long as the
// server itself.
func NewServer(ctx context.Context, log *slog.Logger, service contract.ISessionService, cfg Config) *Server {
	return &Server{
		log:     log,
		service: service,
		cfg:     cfg,
		ctx:     ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return cfg.AllowedOrigin == "*" || origin == "" || origin == cfg.AllowedOrigin
			},
		},
	}
}

// ServeHTTP handles GET /ws?roomId=..&userName=.. which is the join.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	join := domain.JoinCommand{
		Room:        domain.RoomID(r.URL.Query().Get("roomId")),
		DisplayName: r.URL.Query().Get("userName"),
	}
	if err := ValidateJoin(join); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:             domain.ConnectionID(uuid.NewString()),
		conn:           conn,
		sink:           NewSink(s.cfg.BufferSize),
		service:        s.service,
		limiter:        rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst),
		maxMessageSize: s.cfg.MaxMessageSize,
		log:            s.log,
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	go c.writePump()
	if err := s.service.Join(ctx, c.id, join, c.sink); err != nil {
		s.log.Warn("Join refused", "room", join.Room, "error", err)
		c.sink.Close()
		return
	}
	c.readPump(ctx)
}
