package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dhttpd/pkg/content/memory"
)

// freePort grabs an ephemeral port for a test listener.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func dialAdapter(t *testing.T, port int) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
		if err == nil {
			return conn
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("could not reach adapter on port %d: %v", port, err)
	return nil
}

func TestAdapter_ServeAndShutdown(t *testing.T) {
	resolver := memory.New()
	resolver.Put("/ping", []byte("pong"))

	cfg := HTTPConfig{
		Port:            freePort(t),
		ShutdownTimeout: 500 * time.Millisecond,
	}
	a := New(cfg, resolver, nil)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.Serve(ctx)
	}()

	conn := dialAdapter(t, cfg.Port)
	_, err := conn.Write([]byte("GET /ping HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	resp := readResponse(t, bufio.NewReader(conn))
	assert.Equal(t, 200, resp.status)
	assert.Equal(t, "pong", string(resp.body))

	require.NoError(t, conn.Close())
	cancel()

	select {
	case err := <-serveErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}
}

func TestAdapter_StopUnblocksServe(t *testing.T) {
	cfg := HTTPConfig{
		Port:            freePort(t),
		ShutdownTimeout: 500 * time.Millisecond,
	}
	a := New(cfg, memory.New(), nil)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.Serve(context.Background())
	}()

	// Give the listener a moment to come up
	conn := dialAdapter(t, cfg.Port)
	require.NoError(t, conn.Close())

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx))

	select {
	case <-serveErr:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestAdapter_ConnectionObserverFiresOnce(t *testing.T) {
	var mu sync.Mutex
	deaths := make(map[string]int)
	observed := make(chan string, 4)

	cfg := HTTPConfig{
		Port:            freePort(t),
		ShutdownTimeout: 500 * time.Millisecond,
	}
	a := New(cfg, memory.New(), nil, WithConnectionObserver(func(addr string) {
		mu.Lock()
		deaths[addr]++
		mu.Unlock()
		observed <- addr
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Serve(ctx) }()

	conn := dialAdapter(t, cfg.Port)
	localAddr := conn.LocalAddr().String()

	// A malformed request tears the connection down server-side
	_, err := conn.Write([]byte("NOT-HTTP\r\n"))
	require.NoError(t, err)

	select {
	case addr := <-observed:
		assert.Equal(t, localAddr, addr)
	case <-time.After(5 * time.Second):
		t.Fatal("observer never fired")
	}

	_ = conn.Close()

	// Give any duplicate report a chance to arrive, then check the count
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, deaths[localAddr], "death must be reported exactly once")
}

func TestAdapter_SecureWithoutIdentityFails(t *testing.T) {
	cfg := HTTPConfig{
		Port:            freePort(t),
		Secure:          true,
		ShutdownTimeout: 500 * time.Millisecond,
	}
	a := New(cfg, memory.New(), nil)

	err := a.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS identity")
}

func TestAdapter_ProtocolAndPort(t *testing.T) {
	cfg := HTTPConfig{Port: 9999}
	a := New(cfg, memory.New(), nil)

	assert.Equal(t, "HTTP", a.Protocol())
	assert.Equal(t, 9999, a.Port())
	assert.Equal(t, int32(0), a.GetActiveConnections())
}

func TestConfig_Defaults(t *testing.T) {
	var cfg HTTPConfig
	cfg.applyDefaults()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "dhttpd", cfg.Realm)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeout, "idle timeout defaults to unlimited")
	assert.NotZero(t, cfg.NonceTTL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HTTPConfig)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *HTTPConfig) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *HTTPConfig) { c.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "negative write timeout",
			mutate:  func(c *HTTPConfig) { c.WriteTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "negative chunk size",
			mutate:  func(c *HTTPConfig) { c.ChunkSize = -1 },
			wantErr: true,
		},
		{
			name:    "zero shutdown timeout",
			mutate:  func(c *HTTPConfig) { c.ShutdownTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg HTTPConfig
			cfg.applyDefaults()
			tt.mutate(&cfg)

			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
