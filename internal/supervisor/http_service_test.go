package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type fakeServer struct {
	mu        sync.Mutex
	listenErr error
	stop      chan struct{}
	shutdowns int
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	close(f.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := newFakeServer(nil)
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.shutdowns != 1 {
		t.Errorf("expected 1 shutdown, got %d", srv.shutdowns)
	}
}

func TestHTTPServiceReportsListenFailure(t *testing.T) {
	svc := NewHTTPService(newFakeServer(errors.New("address in use")), time.Second)

	err := svc.Serve(context.Background())
	if err == nil {
		t.Fatal("expected error from failed listen")
	}
	if svc.String() != "http-server" {
		t.Errorf("expected http-server, got %s", svc.String())
	}
}
