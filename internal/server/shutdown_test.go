package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterCloser(CloserFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}
	var reason string
	sm.OnShutdownStart(func(r string) { reason = r })

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(order) != 3 || order[0] != 2 || order[2] != 0 {
		t.Errorf("close order = %v", order)
	}
	if reason != "test" {
		t.Errorf("reason = %q", reason)
	}

	// Second call is a no-op.
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Errorf("second Shutdown returned %v", err)
	}
	if len(order) != 3 || reason != "test" {
		t.Error("second Shutdown ran closers again")
	}
}

func TestShutdownReportsCloseError(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	sm.RegisterCloser(CloserFunc(func() error { return errors.New("boom") }))
	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected close error")
	}
}

func TestShutdownDrainsInFlight(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: time.Second})
	if !sm.TrackRequest() {
		t.Fatal("TrackRequest rejected before shutdown")
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		sm.UntrackRequest()
	}()

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if sm.InFlightCount() != 0 {
		t.Errorf("in flight = %d", sm.InFlightCount())
	}
	if sm.TrackRequest() {
		t.Error("TrackRequest accepted after shutdown")
	}
}

func TestShutdownDrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 30 * time.Millisecond})
	sm.TrackRequest()
	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected drain timeout")
	}
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.InFlightCount() != 1 {
			t.Errorf("in flight during request = %d", sm.InFlightCount())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}

	sm.Shutdown(context.Background(), "test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d", rec.Code)
	}
}

func TestUnaryShutdownInterceptor(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	intercept := UnaryShutdownInterceptor(sm)
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}

	resp, err := intercept(context.Background(), nil, info, handler)
	if err != nil || resp != "ok" {
		t.Fatalf("got (%v, %v)", resp, err)
	}

	sm.Shutdown(context.Background(), "test")
	if _, err := intercept(context.Background(), nil, info, handler); status.Code(err) != codes.Unavailable {
		t.Errorf("code after shutdown = %v", status.Code(err))
	}
}

func TestRunHTTPStopsOnShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	sm := NewShutdownManager(ShutdownConfig{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})}
	errCh := sm.RunHTTP(srv, ln)

	resp, err := http.Get("http://" + ln.Addr().String())
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
