package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/envsim/internal/core/observability/log"
)

func TestQUICViewStreamsSnapshots(t *testing.T) {
	env := testEnvironment(t)
	cfg := testConfig()
	cfg.WebSocketAddr = ""
	cfg.QUICAddr = "127.0.0.1:0"
	s := New(env, cfg, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.QUIC().Addr() != nil }, 5*time.Second, 5*time.Millisecond)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	sub, err := DialQUIC(dialCtx, s.QUIC().Addr().String())
	require.NoError(t, err)
	defer sub.Close()
	require.Eventually(t, func() bool { return s.QUIC().Clients() == 1 }, 5*time.Second, 5*time.Millisecond)

	_, err = env.Update()
	require.NoError(t, err)
	f, err := sub.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameSnapshot, f.Type)
	assert.Equal(t, uint64(1), f.Tick)
	assert.Equal(t, env.LastSnapshot().Digest(), f.Digest)

	cancel()
	require.NoError(t, <-done)
}
