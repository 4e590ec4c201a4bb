// Package scheduler tests for background sync scheduling functionality.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	syncpkg "github.com/kimhsiao/resellerdesk/backend/internal/sync"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cadence"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/connectivity"
)

// =====================================================
// Test Helpers
// =====================================================

type fakeSyncer struct {
	mu     sync.Mutex
	calls  int
	called chan struct{}
	result *syncpkg.SyncResult
	err    error
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{called: make(chan struct{}, 16), result: &syncpkg.SyncResult{}}
}

func (f *fakeSyncer) Reconcile(context.Context) (*syncpkg.SyncResult, error) {
	f.mu.Lock()
	f.calls++
	result, err := f.result, f.err
	f.mu.Unlock()
	select {
	case f.called <- struct{}{}:
	default:
	}
	return result, err
}

func (f *fakeSyncer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitCall(t *testing.T, f *fakeSyncer) {
	t.Helper()
	select {
	case <-f.called:
	case <-time.After(2 * time.Second):
		t.Fatal("Reconcile was not called")
	}
}

// farCadence never fires during a test.
func farCadence(t *testing.T) *cadence.Cadence {
	t.Helper()
	c, err := cadence.New(cadence.Config{Cron: "0 0 1 1 *", Location: time.UTC})
	if err != nil {
		t.Fatalf("cadence.New failed: %v", err)
	}
	return c
}

func startScheduler(t *testing.T, syncer Syncer, config *SchedulerConfig) *Scheduler {
	t.Helper()
	s := NewScheduler(syncer, config)
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

// =====================================================
// Trigger Tests
// =====================================================

// TestForceSync verifies a manual trigger runs one attempt through the loop
// and re-arms the timer.
func TestForceSync(t *testing.T) {
	f := newFakeSyncer()
	f.result = &syncpkg.SyncResult{Succeeded: 2}
	s := startScheduler(t, f, &SchedulerConfig{Cadence: farCadence(t)})

	result, err := s.ForceSync(context.Background())
	if err != nil {
		t.Fatalf("ForceSync() error = %v", err)
	}
	if result.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", result.Succeeded)
	}

	status := s.GetStatus()
	if status.LastTrigger != TriggerForce {
		t.Errorf("LastTrigger = %v, want %v", status.LastTrigger, TriggerForce)
	}
	if status.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", status.Attempts)
	}
	if status.NextRunAt == nil || status.LastAttemptAt == nil {
		t.Fatal("status times not set")
	}
	if !status.NextRunAt.After(*status.LastAttemptAt) {
		t.Errorf("NextRunAt %v not after LastAttemptAt %v", status.NextRunAt, status.LastAttemptAt)
	}
}

// TestForceSync_notRunning calls the syncer directly.
func TestForceSync_notRunning(t *testing.T) {
	f := newFakeSyncer()
	s := NewScheduler(f, &SchedulerConfig{Cadence: farCadence(t)})

	if _, err := s.ForceSync(context.Background()); err != nil {
		t.Fatalf("ForceSync() error = %v", err)
	}
	if f.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", f.Calls())
	}
	if got := s.GetStatus().LastTrigger; got != TriggerForce {
		t.Errorf("LastTrigger = %v, want %v", got, TriggerForce)
	}
}

// TestConnectivityRestored verifies the monitor subscription.
func TestConnectivityRestored(t *testing.T) {
	f := newFakeSyncer()
	m := connectivity.NewMonitor(false)
	s := startScheduler(t, f, &SchedulerConfig{Cadence: farCadence(t), Monitor: m})

	m.SetOnline(true)
	waitCall(t, f)

	if got := s.GetStatus().LastTrigger; got != TriggerConnectivity {
		t.Errorf("LastTrigger = %v, want %v", got, TriggerConnectivity)
	}

	// Going offline does not trigger anything.
	m.SetOnline(false)
	time.Sleep(30 * time.Millisecond)
	if f.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", f.Calls())
	}
}

// TestCadenceTimer verifies the timer fires and is re-armed.
func TestCadenceTimer(t *testing.T) {
	f := newFakeSyncer()
	c, err := cadence.New(cadence.Config{Location: time.UTC, PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("cadence.New failed: %v", err)
	}
	s := startScheduler(t, f, &SchedulerConfig{Cadence: c})

	waitCall(t, f)
	waitCall(t, f)

	status := s.GetStatus()
	if status.LastTrigger != TriggerCadence {
		t.Errorf("LastTrigger = %v, want %v", status.LastTrigger, TriggerCadence)
	}
	if status.NextRunAt == nil || status.LastAttemptAt == nil {
		t.Fatal("status times not set")
	}
	if !status.NextRunAt.After(*status.LastAttemptAt) {
		t.Errorf("NextRunAt %v not after LastAttemptAt %v", status.NextRunAt, status.LastAttemptAt)
	}
}

// TestDeclinedAndFailedAttempts keeps the loop alive.
func TestDeclinedAndFailedAttempts(t *testing.T) {
	f := newFakeSyncer()
	f.result = &syncpkg.SyncResult{Skipped: syncpkg.SkipOffline}
	s := startScheduler(t, f, &SchedulerConfig{Cadence: farCadence(t)})

	result, err := s.ForceSync(context.Background())
	if err != nil || !result.Declined() {
		t.Errorf("ForceSync() = %+v, %v, want declined", result, err)
	}

	f.mu.Lock()
	f.result, f.err = nil, errors.New("storage broken")
	f.mu.Unlock()
	if _, err := s.ForceSync(context.Background()); err == nil {
		t.Error("ForceSync() error = nil, want storage error")
	}

	f.mu.Lock()
	f.result, f.err = &syncpkg.SyncResult{Succeeded: 1}, nil
	f.mu.Unlock()
	if _, err := s.ForceSync(context.Background()); err != nil {
		t.Errorf("ForceSync() error = %v", err)
	}
	if f.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", f.Calls())
	}

	if !s.IsRunning() {
		t.Error("scheduler stopped after a failed attempt")
	}
}

// =====================================================
// Lifecycle Tests
// =====================================================

// TestStartStop verifies start and stop are idempotent.
func TestStartStop(t *testing.T) {
	s := NewScheduler(newFakeSyncer(), &SchedulerConfig{Cadence: farCadence(t)})

	if s.IsRunning() {
		t.Error("IsRunning() = true before Start")
	}
	s.Start(context.Background())
	s.Start(context.Background())
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}

	s.Stop()
	s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}

	// Restart after stop.
	s.Start(context.Background())
	defer s.Stop()
	if !s.IsRunning() {
		t.Error("IsRunning() = false after restart")
	}
}

// TestNewScheduler_defaults verifies the default cadence is used.
func TestNewScheduler_defaults(t *testing.T) {
	s := NewScheduler(newFakeSyncer(), nil)
	if s.cadence == nil {
		t.Fatal("cadence not defaulted")
	}
	now := time.Now()
	if d := s.arm(now); d <= 0 || d > 24*time.Hour {
		t.Errorf("arm() = %v, want within one day", d)
	}
}

// TestStop_contextCancel verifies the loop exits with its context.
func TestStop_contextCancel(t *testing.T) {
	f := newFakeSyncer()
	s := NewScheduler(f, &SchedulerConfig{Cadence: farCadence(t)})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}
}
