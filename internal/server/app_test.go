package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func testConfig(t *testing.T) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.StorageBackend = "memory"
	c.EndpointAddrGRPC = freeAddr(t)
	c.EndpointAddrHTTP = freeAddr(t)
	return c
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"", "slog", "zap"} {
		l, err := NewLogger(&config.Config{LogFormat: format})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}

	_, err := NewLogger(&config.Config{LogFormat: "xml"})
	assert.Error(t, err)
}

func TestNewApp_UnknownBackend(t *testing.T) {
	c := testConfig(t)
	c.StorageBackend = "mongo"
	_, err := newApp(context.Background(), c, logging.Nop{})
	assert.ErrorContains(t, err, "db init error")
}

func TestNewApp_SchedulesLimiterPruning(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(t), logging.Nop{})
	require.NoError(t, err)
	assert.Equal(t, 1, app.scheduler.Len())

	c := testConfig(t)
	c.LimiterIdleTTL = 0
	app, err = newApp(context.Background(), c, logging.Nop{})
	require.NoError(t, err)
	assert.Equal(t, 0, app.scheduler.Len())
}

func TestPruneLimiterTask(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(t), logging.Nop{})
	require.NoError(t, err)

	app.limiter.Allow("alice", "sync")
	require.Equal(t, 1, app.limiter.Len())

	app.config.LimiterIdleTTL = time.Nanosecond
	time.Sleep(time.Millisecond)
	app.pruneLimiterTask().TaskFn(context.Background())
	assert.Equal(t, 0, app.limiter.Len())
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(t), logging.Nop{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after context cancel")
	}
}
