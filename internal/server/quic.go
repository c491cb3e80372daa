package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/envsim/internal/core/observability/log"
)

func defaultQUICConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	}
}

type quicClient struct {
	conn *quic.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *quicClient) close() {
	c.once.Do(func() { close(c.done) })
}

// QUICView streams length-prefixed snapshot frames to QUIC clients, one
// server-opened stream per connection.
type QUICView struct {
	config    Config
	tlsConfig *tls.Config
	logger    log.Log

	mu      sync.RWMutex
	clients map[*quicClient]struct{}
	addr    net.Addr
	wg      sync.WaitGroup

	dropped atomic.Uint64
}

// NewQUICView creates a view. A nil tlsConfig gets a self-signed certificate
// when Serve starts.
func NewQUICView(cfg Config, tlsConfig *tls.Config, logger log.Log) *QUICView {
	if logger == nil {
		logger = log.Provide()
	}
	return &QUICView{
		config:    cfg.withDefaults(),
		tlsConfig: tlsConfig,
		logger:    logger.With(log.String("component", "quic_view")),
		clients:   make(map[*quicClient]struct{}),
	}
}

// Serve accepts connections on addr until ctx is done.
func (v *QUICView) Serve(ctx context.Context, addr string) error {
	tlsConfig := v.tlsConfig
	if tlsConfig == nil {
		var err error
		if tlsConfig, err = GenerateSelfSignedTLS(); err != nil {
			return errors.Wrap(err, "generate tls config")
		}
	}

	ln, err := quic.ListenAddr(addr, tlsConfig, defaultQUICConfig())
	if err != nil {
		return errors.Wrapf(ErrListenerFailed, "quic %s: %v", addr, err)
	}
	v.mu.Lock()
	v.addr = ln.Addr()
	v.mu.Unlock()
	v.logger.Info("QUIC view listening", log.String("addr", ln.Addr().String()))

	defer func() {
		v.closeClients()
		v.wg.Wait()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "quic accept")
		}
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			v.handle(ctx, conn)
		}()
	}
}

func (v *QUICView) Addr() net.Addr {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.addr
}

func (v *QUICView) Clients() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.clients)
}

func (v *QUICView) Dropped() uint64 { return v.dropped.Load() }

// Broadcast queues frame for every client without blocking.
func (v *QUICView) Broadcast(frame []byte) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for c := range v.clients {
		select {
		case c.send <- frame:
		case <-c.done:
		default:
			v.dropped.Add(1)
		}
	}
}

func (v *QUICView) handle(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		v.logger.Warn("QUIC stream open failed", log.String("remote", remote), log.Error(err))
		_ = conn.CloseWithError(1, "stream open failed")
		return
	}

	c := &quicClient{conn: conn, send: make(chan []byte, v.config.SendBuffer), done: make(chan struct{})}
	v.mu.Lock()
	v.clients[c] = struct{}{}
	v.mu.Unlock()
	v.logger.Debug("QUIC client connected", log.String("remote", remote))

	defer func() {
		v.mu.Lock()
		delete(v.clients, c)
		v.mu.Unlock()
		c.close()
		_ = stream.Close()
		_ = conn.CloseWithError(0, "bye")
		v.logger.Debug("QUIC client disconnected", log.String("remote", remote))
	}()

	// the peer only sees the stream once it carries data
	hello, _ := json.Marshal(Frame{Type: "hello"})
	if err := v.write(stream, hello); err != nil {
		return
	}

	for {
		select {
		case <-c.done:
			return
		case <-conn.Context().Done():
			return
		case frame := <-c.send:
			if err := v.write(stream, frame); err != nil {
				return
			}
		}
	}
}

func (v *QUICView) write(stream *quic.Stream, frame []byte) error {
	_ = stream.SetWriteDeadline(time.Now().Add(v.config.WriteTimeout))
	return WriteFrame(stream, frame)
}

func (v *QUICView) closeClients() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for c := range v.clients {
		c.close()
	}
}

// QUICSubscriber reads snapshot frames from a QUICView.
type QUICSubscriber struct {
	conn   *quic.Conn
	stream *quic.Stream
	limit  int
}

// DialQUIC connects to a QUICView. Certificates are not verified.
func DialQUIC(ctx context.Context, addr string) (*QUICSubscriber, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{QUICProtocol},
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConfig, defaultQUICConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, errors.Wrap(err, "accept snapshot stream")
	}
	sub := &QUICSubscriber{conn: conn, stream: stream, limit: 16 << 20}
	if _, err := sub.Next(); err != nil {
		_ = sub.Close()
		return nil, errors.Wrap(err, "read hello")
	}
	return sub, nil
}

// Next blocks for the next frame.
func (s *QUICSubscriber) Next() (Frame, error) {
	raw, err := ReadFrame(s.stream, s.limit)
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	return f, nil
}

func (s *QUICSubscriber) Close() error {
	return s.conn.CloseWithError(0, "")
}
