package server

import "time"

// Config holds server configuration
type Config struct {
	// Network settings. An empty address disables that transport.
	WebSocketAddr string
	QUICAddr      string

	// BroadcastEvery sends one snapshot per this many ticks.
	BroadcastEvery int

	// Client settings
	SendBuffer     int
	WriteTimeout   time.Duration
	MaxMessageSize int64

	// ControlToken, when set, must be sent as "Authorization: Bearer <token>"
	// to open a websocket or POST /control.
	ControlToken string

	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		WebSocketAddr:   "127.0.0.1:8080",
		BroadcastEvery:  10,
		SendBuffer:      16,
		WriteTimeout:    5 * time.Second,
		MaxMessageSize:  64 * 1024,
		ShutdownTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultServerConfig()
	if c.BroadcastEvery <= 0 {
		c.BroadcastEvery = d.BroadcastEvery
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}
