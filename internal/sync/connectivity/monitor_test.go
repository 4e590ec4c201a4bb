package connectivity

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestMonitor_transitionsOnly(t *testing.T) {
	m := NewMonitor(false)

	var ups, downs atomic.Int32
	m.Subscribe(func(online bool) {
		if online {
			ups.Add(1)
		} else {
			downs.Add(1)
		}
	})

	m.SetOnline(false) // no change
	m.SetOnline(true)
	m.SetOnline(true) // no change
	m.SetOnline(false)

	waitFor(t, func() bool { return ups.Load() == 1 && downs.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if ups.Load() != 1 || downs.Load() != 1 {
		t.Errorf("ups=%d downs=%d, want 1 and 1", ups.Load(), downs.Load())
	}
	if m.IsOnline() {
		t.Error("IsOnline() = true, want false")
	}
}

func TestMonitor_unsubscribe(t *testing.T) {
	m := NewMonitor(false)

	var calls atomic.Int32
	unsubscribe := m.Subscribe(func(bool) { calls.Add(1) })
	unsubscribe()
	unsubscribe()

	m.SetOnline(true)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0 after unsubscribe", calls.Load())
	}
}

func TestMonitor_slowListenerDoesNotBlock(t *testing.T) {
	m := NewMonitor(false)
	release := make(chan struct{})
	defer close(release)
	m.Subscribe(func(bool) { <-release })

	done := make(chan struct{})
	go func() {
		m.SetOnline(true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetOnline blocked on a listener")
	}
}

func TestProber(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMonitor(false)
	p := NewProber(srv.URL, 10*time.Millisecond, m)
	p.Start()
	defer p.Stop()

	waitFor(t, m.IsOnline)

	healthy.Store(false)
	waitFor(t, func() bool { return !m.IsOnline() })
}

func TestProbe_unreachable(t *testing.T) {
	p := NewProber("http://127.0.0.1:1/health", time.Second, NewMonitor(true))
	if p.Probe(t.Context()) {
		t.Error("Probe() = true for unreachable host, want false")
	}
}
