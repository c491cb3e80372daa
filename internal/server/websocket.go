package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/world"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ControlMessage switches one movement intent of an agent.
type ControlMessage struct {
	Agent  string `json:"agent"`
	Action string `json:"action"`
	Active bool   `json:"active"`
}

// ControlError is sent back when a control message cannot be applied.
type ControlError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Controller receives control input from view clients.
type Controller interface {
	SetIntent(agent string, action world.Action, active bool) error
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WebSocketView streams snapshot frames to every connected websocket client
// and applies the control messages they send.
type WebSocketView struct {
	controller Controller
	config     Config
	auth       tokenAuth
	logger     log.Log

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	addr    net.Addr

	dropped atomic.Uint64
}

func NewWebSocketView(controller Controller, cfg Config, logger log.Log) *WebSocketView {
	if logger == nil {
		logger = log.Provide()
	}
	cfg = cfg.withDefaults()
	return &WebSocketView{
		controller: controller,
		config:     cfg,
		auth:       tokenAuth{token: cfg.ControlToken},
		logger:     logger.With(log.String("component", "websocket_view")),
		clients:    make(map[*wsClient]struct{}),
	}
}

// Serve listens on addr until ctx is done, then closes every client.
func (v *WebSocketView) Serve(ctx context.Context, addr string, extra func(*http.ServeMux)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(ErrListenerFailed, "websocket %s: %v", addr, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", v.handleWebSocket)
	if extra != nil {
		extra(mux)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	v.mu.Lock()
	v.addr = ln.Addr()
	v.mu.Unlock()
	v.logger.Info("WebSocket view listening", log.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), v.config.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		v.closeClients()
		<-errCh
		return err
	case err := <-errCh:
		v.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr is the bound address once Serve has started listening.
func (v *WebSocketView) Addr() net.Addr {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.addr
}

func (v *WebSocketView) Clients() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.clients)
}

// Dropped counts frames discarded because a client fell behind.
func (v *WebSocketView) Dropped() uint64 { return v.dropped.Load() }

// Broadcast queues frame for every client without blocking. Slow clients
// lose frames.
func (v *WebSocketView) Broadcast(frame []byte) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for c := range v.clients {
		v.enqueue(c, frame)
	}
}

func (v *WebSocketView) enqueue(c *wsClient, frame []byte) {
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		v.dropped.Add(1)
	}
}

func (v *WebSocketView) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := v.auth.authorize(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.logger.Warn("WebSocket upgrade failed", log.Error(err))
		return
	}
	conn.SetReadLimit(v.config.MaxMessageSize)

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, v.config.SendBuffer),
		done: make(chan struct{}),
	}
	v.mu.Lock()
	v.clients[c] = struct{}{}
	v.mu.Unlock()
	v.logger.Debug("WebSocket client connected", log.String("remote", conn.RemoteAddr().String()))

	go v.writeLoop(c)
	v.readLoop(c)

	v.mu.Lock()
	delete(v.clients, c)
	v.mu.Unlock()
	c.close()
	v.logger.Debug("WebSocket client disconnected", log.String("remote", conn.RemoteAddr().String()))
}

func (v *WebSocketView) writeLoop(c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(v.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		}
	}
}

func (v *WebSocketView) readLoop(c *wsClient) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if err := v.apply(raw); err != nil {
			reply, _ := json.Marshal(ControlError{Type: "error", Error: err.Error()})
			v.enqueue(c, reply)
		}
	}
}

func (v *WebSocketView) apply(raw []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errors.Wrap(ErrInvalidMessage, err.Error())
	}
	action, err := world.ParseAction(msg.Action)
	if err != nil {
		return err
	}
	if v.controller == nil {
		return errors.Wrap(ErrInvalidMessage, "control input is disabled")
	}
	return v.controller.SetIntent(msg.Agent, action, msg.Active)
}

func (v *WebSocketView) closeClients() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for c := range v.clients {
		c.close()
	}
}
