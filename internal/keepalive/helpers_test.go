package keepalive

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/icwatch/icwatch/internal/alert"
	"github.com/icwatch/icwatch/internal/registry"
)

// recordingSink keeps every event it is notified of.
type recordingSink struct {
	mu     sync.Mutex
	events []alert.Event
}

func (s *recordingSink) Notify(ev alert.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) Events() []alert.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Event(nil), s.events...)
}

func (s *recordingSink) count(code alert.Code, name string) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.Code == code && ev.Target.Name == name {
			n++
		}
	}
	return n
}

// startServer runs a Server on a random loopback port until the test ends.
func startServer(t *testing.T, cfg ServerConfig, reg *registry.Registry, sink Sink) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(cfg, reg, sink, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ln.Addr().String()
}

// expire drives name to zero through the public registry API.
func expire(reg *registry.Registry, name string) {
	reg.Touch(name)
	for i := 0; i < int(reg.Max()); i++ {
		reg.Tick()
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
