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
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	name    string
	started atomic.Bool
	stopped chan struct{}
	once    sync.Once
	startFn func() error
	onStop  func(name string)
}

func newMockService(name string) *mockService {
	return &mockService{name: name, stopped: make(chan struct{})}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.stopped
	return nil
}

func (m *mockService) Stop() {
	m.once.Do(func() {
		if m.onStop != nil {
			m.onStop(m.name)
		}
		close(m.stopped)
	})
}

func (m *mockService) isStopped() bool {
	select {
	case <-m.stopped:
		return true
	default:
		return false
	}
}

func TestLifecycle_StopsInReverseOrderOnCancel(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	svc1 := newMockService("store")
	svc1.onStop = record
	svc2 := newMockService("http")
	svc2.onStop = record
	lc.Add(svc1.name, svc1)
	lc.Add(svc2.name, svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc1.started.Load() && svc2.started.Load()
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.isStopped())
	assert.True(t, svc2.isStopped())
	assert.Equal(t, []string{"http", "store"}, order)
}

func TestLifecycle_ServiceFailureStopsOthers(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))

	healthy := newMockService("hub")
	boom := errors.New("listen: address in use")
	failing := newMockService("http")
	failing.startFn = func() error { return boom }

	lc.Add(healthy.name, healthy)
	lc.Add(failing.name, failing)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service http")
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, healthy.isStopped())
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func() {
			stopped = true
		},
	}

	err := svc.Start()
	assert.NoError(t, err)
	assert.True(t, started)

	svc.Stop()
	assert.True(t, stopped)
}
