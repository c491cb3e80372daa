package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/envsim/internal/core/observability/log"
	"github.com/zeusync/envsim/internal/core/world"
)

func testEnvironment(t *testing.T) *world.Environment {
	t.Helper()
	terrain, err := world.NewTerrain(world.TerrainOptions{Size: 11, CellSize: 10})
	require.NoError(t, err)
	env, err := world.New(terrain, world.Options{Seed: 1, Logger: log.NewNop()})
	require.NoError(t, err)
	require.NoError(t, env.Initialize(context.Background()))
	mouse, err := world.NewAgent(world.AgentOptions{Name: "mouse", X: 10, Z: 10})
	require.NoError(t, err)
	require.NoError(t, env.Add(mouse))
	return env
}

func testConfig() Config {
	cfg := DefaultServerConfig()
	cfg.WebSocketAddr = "127.0.0.1:0"
	cfg.BroadcastEvery = 1
	return cfg
}

func TestFrameRoundTrip(t *testing.T) {
	env := testEnvironment(t)
	_, err := env.Update()
	require.NoError(t, err)

	raw, err := newFrameEncoder().encode(env.LastSnapshot())
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, WriteFrame(&buf, raw))
	payload, err := ReadFrame(strings.NewReader(buf.String()), 0)
	require.NoError(t, err)

	var f Frame
	require.NoError(t, json.Unmarshal(payload, &f))
	assert.Equal(t, FrameSnapshot, f.Type)
	assert.Equal(t, uint64(1), f.Tick)
	assert.Equal(t, env.LastSnapshot().Digest(), f.Digest)
	assert.Equal(t, env.LastSnapshot().Elements, f.Snapshot.Elements)

	_, err = ReadFrame(strings.NewReader(buf.String()), 4)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func postControl(url, token, body string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func TestHTTPEndpoints(t *testing.T) {
	env := testEnvironment(t)
	cfg := testConfig()
	cfg.ControlToken = "secret"
	s := New(env, cfg, log.NewNop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = env.Update()
	require.NoError(t, err)
	resp, err = http.Get(ts.URL + "/snapshot")
	require.NoError(t, err)
	var f Frame
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
	resp.Body.Close()
	assert.Equal(t, uint64(1), f.Tick)

	body := `{"agent":"mouse","action":"forward","active":true}`
	resp, err = http.Post(ts.URL+"/control", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = postControl(ts.URL+"/control?token=secret", "", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "token in the query is ignored")

	resp, err = postControl(ts.URL+"/control", "wrong", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = postControl(ts.URL+"/control", "secret", body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err = env.Update()
	require.NoError(t, err)
	mouse, _ := env.Agent("mouse")
	assert.InDelta(t, 11.0, mouse.Location().Z(), 1e-9)

	resp, err = postControl(ts.URL+"/control", "secret", `{"agent":"cat","action":"left","active":true}`)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, uint64(2), stats.Environment.Ticks)
}

func TestServerRunStreamsSnapshots(t *testing.T) {
	env := testEnvironment(t)
	s := New(env, testConfig(), log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	require.Eventually(t, func() bool { return s.WebSocket().Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Run(context.Background()), ErrServerAlreadyRunning)

	conn := dialWS(t, "ws://"+s.WebSocket().Addr().String()+"/ws")
	defer conn.Close()
	require.Eventually(t, func() bool { return s.WebSocket().Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := env.Update()
	require.NoError(t, err)
	f := readSnapshot(t, conn)
	assert.Equal(t, uint64(1), f.Tick)
	assert.Equal(t, uint64(1), s.Stats().Broadcasts)

	cancel()
	require.NoError(t, <-done)
}

func TestServerRequiresAddress(t *testing.T) {
	s := New(testEnvironment(t), Config{}, log.NewNop())
	assert.ErrorIs(t, s.Run(context.Background()), ErrInvalidConfig)
}

func TestBroadcastEvery(t *testing.T) {
	env := testEnvironment(t)
	cfg := testConfig()
	cfg.BroadcastEvery = 3
	s := New(env, cfg, log.NewNop())
	remove, err := env.AddView(s)
	require.NoError(t, err)
	defer remove()

	for i := 0; i < 7; i++ {
		_, err := env.Update()
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), s.Stats().Broadcasts)
}
