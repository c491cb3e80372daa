package server

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/world"
)

// Environment is the part of the simulation the server exposes.
type Environment interface {
	Controller
	LastSnapshot() *world.Snapshot
	Stats() world.Stats
	AddView(world.View) (func(), error)
}

// Stats counts server activity.
type Stats struct {
	Broadcasts       uint64 `json:"broadcasts"`
	WebSocketClients int    `json:"websocket_clients"`
	QUICClients      int    `json:"quic_clients"`
	Dropped          uint64 `json:"dropped"`
}

// Server is an environment view that streams committed snapshots to network
// clients over websocket and QUIC, and feeds websocket control messages back
// into the environment.
type Server struct {
	config  Config
	env     Environment
	logger  log.Log
	encoder *frameEncoder

	ws   *WebSocketView
	quic *QUICView

	running    atomic.Bool
	ticks      atomic.Uint64
	broadcasts atomic.Uint64
}

var _ world.View = (*Server)(nil)

func New(env Environment, cfg Config, logger log.Log) *Server {
	if logger == nil {
		logger = log.Provide()
	}
	cfg = cfg.withDefaults()
	return &Server{
		config:  cfg,
		env:     env,
		logger:  logger.With(log.String("component", "server")),
		encoder: newFrameEncoder(),
		ws:      NewWebSocketView(env, cfg, logger),
		quic:    NewQUICView(cfg, nil, logger),
	}
}

// Run registers the server as a view and serves every configured transport
// until ctx is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	if s.config.WebSocketAddr == "" && s.config.QUICAddr == "" {
		return errors.Wrap(ErrInvalidConfig, "no listen address")
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer s.running.Store(false)

	remove, err := s.env.AddView(s)
	if err != nil {
		return errors.Wrap(err, "register view")
	}
	defer remove()

	g, gctx := errgroup.WithContext(ctx)
	if addr := s.config.WebSocketAddr; addr != "" {
		g.Go(func() error {
			return s.ws.Serve(gctx, addr, s.routes)
		})
	}
	if addr := s.config.QUICAddr; addr != "" {
		g.Go(func() error {
			return s.quic.Serve(gctx, addr)
		})
	}
	s.logger.Info("Server started",
		log.String("websocket", s.config.WebSocketAddr),
		log.String("quic", s.config.QUICAddr),
		log.Int("broadcast_every", s.config.BroadcastEvery))

	err = g.Wait()
	s.logger.Info("Server stopped", log.Uint64("broadcasts", s.broadcasts.Load()))
	return err
}

// UpdateView is called by the environment after every tick and broadcasts
// every BroadcastEvery-th snapshot.
func (s *Server) UpdateView() {
	if s.ticks.Add(1)%uint64(s.config.BroadcastEvery) != 0 {
		return
	}
	snap := s.env.LastSnapshot()
	if snap == nil {
		return
	}
	if err := s.Broadcast(snap); err != nil {
		s.logger.Warn("Snapshot broadcast failed", log.Uint64("tick", snap.Tick), log.Error(err))
	}
}

// Broadcast sends snap to every connected client.
func (s *Server) Broadcast(snap *world.Snapshot) error {
	frame, err := s.encoder.encode(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	s.ws.Broadcast(frame)
	s.quic.Broadcast(frame)
	s.broadcasts.Add(1)
	return nil
}

func (s *Server) Stats() Stats {
	return Stats{
		Broadcasts:       s.broadcasts.Load(),
		WebSocketClients: s.ws.Clients(),
		QUICClients:      s.quic.Clients(),
		Dropped:          s.ws.Dropped() + s.quic.Dropped(),
	}
}

func (s *Server) WebSocket() *WebSocketView { return s.ws }
func (s *Server) QUIC() *QUICView           { return s.quic }

// Handler exposes the HTTP routes and the websocket endpoint without a
// listener, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.ws.handleWebSocket)
	s.routes(mux)
	return mux
}
