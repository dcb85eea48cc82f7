package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter is a controllable adapter for lifecycle tests.
type stubAdapter struct {
	protocol string
	port     int
	serveErr error
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newStubAdapter(protocol string, port int, serveErr error) *stubAdapter {
	return &stubAdapter{
		protocol: protocol,
		port:     port,
		serveErr: serveErr,
		stopCh:   make(chan struct{}),
	}
}

func (a *stubAdapter) Serve(ctx context.Context) error {
	if a.serveErr != nil {
		return a.serveErr
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case <-a.stopCh:
		return nil
	}
}

func (a *stubAdapter) Stop(ctx context.Context) error {
	a.stopped.Store(true)
	a.stopOnce.Do(func() { close(a.stopCh) })
	return nil
}

func (a *stubAdapter) Protocol() string { return a.protocol }
func (a *stubAdapter) Port() int        { return a.port }

func TestAddAdapter_RejectsDuplicateProtocol(t *testing.T) {
	srv := New()

	require.NoError(t, srv.AddAdapter(newStubAdapter("HTTP", 8080, nil)))

	err := srv.AddAdapter(newStubAdapter("HTTP", 8081, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestAddAdapter_RejectsPortConflict(t *testing.T) {
	srv := New()

	require.NoError(t, srv.AddAdapter(newStubAdapter("HTTP", 8080, nil)))

	err := srv.AddAdapter(newStubAdapter("HTTPS", 8080, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}

func TestServe_RequiresAdapters(t *testing.T) {
	srv := New()

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapters registered")
}

func TestServe_StopsAdaptersOnCancellation(t *testing.T) {
	srv := New()
	a := newStubAdapter("HTTP", 8080, nil)
	b := newStubAdapter("HTTPS", 8443, nil)
	require.NoError(t, srv.AddAdapter(a))
	require.NoError(t, srv.AddAdapter(b))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())
}

func TestServe_AdapterFailureStopsAll(t *testing.T) {
	srv := New()
	failing := newStubAdapter("HTTP", 8080, errors.New("bind failed"))
	healthy := newStubAdapter("HTTPS", 8443, nil)
	require.NoError(t, srv.AddAdapter(failing))
	require.NoError(t, srv.AddAdapter(healthy))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind failed")
	assert.True(t, healthy.stopped.Load(), "healthy adapter must be stopped too")
}

func TestServe_PanicsOnSecondCall(t *testing.T) {
	srv := New()
	require.NoError(t, srv.AddAdapter(newStubAdapter("HTTP", 8080, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = srv.Serve(ctx)

	assert.Panics(t, func() { _ = srv.Serve(context.Background()) })
}

func TestAdapters_ReturnsSnapshot(t *testing.T) {
	srv := New()
	require.NoError(t, srv.AddAdapter(newStubAdapter("HTTP", 8080, nil)))

	adapters := srv.Adapters()
	require.Len(t, adapters, 1)

	adapters[0] = nil
	assert.NotNil(t, srv.Adapters()[0], "mutating the snapshot must not affect the server")
}
