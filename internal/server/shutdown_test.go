package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		sm.RegisterCloser(CloserFunc(func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, i)
			return nil
		}))
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Errorf("close order = %v, want [3 2 1]", order)
	}
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Errorf("second shutdown should be a no-op, got %v", err)
	}
	if !sm.IsShuttingDown() {
		t.Error("expected shutting down")
	}
	select {
	case <-sm.ShutdownCh():
	default:
		t.Error("shutdown channel not closed")
	}
}

func TestShutdownReportsCloseError(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	sm.RegisterCloser(CloserFunc(func() error { return errors.New("boom") }))

	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected close error")
	}
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: time.Second, DrainTimeout: time.Second})
	if !sm.TrackRequest() {
		t.Fatal("request rejected before shutdown")
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(released)
		sm.UntrackRequest()
	}()

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-released:
	default:
		t.Error("shutdown returned before the in-flight request finished")
	}
	if sm.TrackRequest() {
		t.Error("requests must be rejected after shutdown")
	}
}

func TestShutdownDrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: time.Second, DrainTimeout: 30 * time.Millisecond})
	sm.TrackRequest()

	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected drain timeout")
	}
	if sm.InFlightCount() != 1 {
		t.Errorf("InFlightCount = %d", sm.InFlightCount())
	}
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.InFlightCount() != 1 {
			t.Errorf("InFlightCount = %d inside handler", sm.InFlightCount())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || sm.InFlightCount() != 0 {
		t.Errorf("status = %d, in flight = %d", rec.Code, sm.InFlightCount())
	}

	_ = sm.Shutdown(context.Background(), "test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestUnaryShutdownInterceptor(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	intercept := UnaryShutdownInterceptor(sm)
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	resp, err := intercept(context.Background(), nil, info, handler)
	if err != nil || resp != "ok" {
		t.Fatalf("unexpected (%v, %v)", resp, err)
	}

	_ = sm.Shutdown(context.Background(), "test")
	if _, err := intercept(context.Background(), nil, info, handler); status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", status.Code(err))
	}
}

func TestListenForSignalsContextCancel(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	closed := false
	sm.RegisterCloser(CloserFunc(func() error {
		closed = true
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sm.ListenForSignals(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !closed {
		t.Error("closer not run")
	}
}
