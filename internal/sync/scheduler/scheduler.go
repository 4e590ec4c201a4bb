// Package scheduler decides when reconciliation passes run. One goroutine
// owns one timer; connectivity, cadence and manual triggers all funnel into
// a single attemptSync call.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	syncpkg "github.com/kimhsiao/resellerdesk/backend/internal/sync"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cadence"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/connectivity"
)

// Syncer runs a reconciliation pass. *syncpkg.SyncEngine implements it.
type Syncer interface {
	Reconcile(ctx context.Context) (*syncpkg.SyncResult, error)
}

// Trigger names the reason a pass was attempted.
type Trigger string

const (
	TriggerConnectivity Trigger = "connectivity_restored"
	TriggerForce        Trigger = "force_sync"
	TriggerCadence      Trigger = "cadence"
)

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Cadence defaults to the daily slots in local time.
	Cadence *cadence.Cadence
	// Monitor, when set, triggers a pass on every offline to online change.
	Monitor *connectivity.Monitor
}

// Scheduler manages background sync attempts.
type Scheduler struct {
	syncer  Syncer
	cadence *cadence.Cadence
	monitor *connectivity.Monitor

	triggerCh chan request
	stopCh    chan struct{}
	doneCh    chan struct{}
	wg        sync.WaitGroup

	mu          sync.RWMutex
	isRunning   bool
	nextRunAt   time.Time
	lastAttempt time.Time
	lastTrigger Trigger
	attempts    int
	unsubscribe func()

	now func() time.Time
	log *logging.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(syncer Syncer, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = &SchedulerConfig{}
	}
	cad := config.Cadence
	if cad == nil {
		cad = cadence.MustDefault(time.Local)
	}

	return &Scheduler{
		syncer:    syncer,
		cadence:   cad,
		monitor:   config.Monitor,
		triggerCh: make(chan request, 8),
		now:       time.Now,
		log:       logging.Component("scheduler"),
	}
}

// Start starts the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	if s.monitor != nil {
		s.unsubscribe = s.monitor.Subscribe(func(online bool) {
			if online {
				s.OnConnectivityRestored()
			}
		})
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, s.stopCh, s.doneCh)

	s.log.Info("Sync scheduler started")
}

// Stop stops the scheduler and waits for an in-progress attempt to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("Sync scheduler stopped")
}

// OnConnectivityRestored requests a pass after the device came back online.
func (s *Scheduler) OnConnectivityRestored() {
	s.signal(TriggerConnectivity)
}

// request is one trigger handed to the loop. reply, when set, receives the
// outcome of the attempt.
type request struct {
	trigger Trigger
	reply   chan outcome
}

type outcome struct {
	result *syncpkg.SyncResult
	err    error
}

// ForceSync runs a pass on behalf of the user and returns its result. While
// the scheduler runs, the attempt goes through the loop so the cadence timer
// is re-armed afterwards; otherwise the syncer is called directly.
func (s *Scheduler) ForceSync(ctx context.Context) (*syncpkg.SyncResult, error) {
	s.mu.RLock()
	running, doneCh := s.isRunning, s.doneCh
	s.mu.RUnlock()
	if !running {
		return s.attemptSync(ctx, TriggerForce)
	}

	reply := make(chan outcome, 1)
	select {
	case s.triggerCh <- request{trigger: TriggerForce, reply: reply}:
	case <-doneCh:
		return s.attemptSync(ctx, TriggerForce)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case out := <-reply:
		return out.result, out.err
	case <-doneCh:
		// The loop may have answered just before exiting.
		select {
		case out := <-reply:
			return out.result, out.err
		default:
		}
		return s.attemptSync(ctx, TriggerForce)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) signal(t Trigger) {
	select {
	case s.triggerCh <- request{trigger: t}:
	default:
		// A burst of triggers collapses into the ones already pending.
		s.log.Debug("Trigger dropped, attempts already pending", map[string]interface{}{
			"trigger": string(t),
		})
	}
}

func (s *Scheduler) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer s.wg.Done()
	defer close(doneCh)

	timer := time.NewTimer(s.arm(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case req := <-s.triggerCh:
			result, err := s.attemptSync(ctx, req.trigger)
			if req.reply != nil {
				req.reply <- outcome{result: result, err: err}
			}
		case <-timer.C:
			s.attemptSync(ctx, TriggerCadence)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.arm(s.now()))
	}
}

// arm records the next cadence time and returns the wait until it.
func (s *Scheduler) arm(now time.Time) time.Duration {
	next := s.cadence.Next(now)

	s.mu.Lock()
	s.nextRunAt = next
	s.mu.Unlock()

	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

func (s *Scheduler) attemptSync(ctx context.Context, t Trigger) (*syncpkg.SyncResult, error) {
	s.mu.Lock()
	s.lastAttempt = s.now()
	s.lastTrigger = t
	s.attempts++
	s.mu.Unlock()

	result, err := s.syncer.Reconcile(ctx)
	if err != nil {
		s.log.Error("Scheduled sync failed", err, map[string]interface{}{
			"trigger": string(t),
		})
		return result, err
	}
	if result.Declined() {
		s.log.Debug("Sync declined", map[string]interface{}{
			"trigger": string(t),
			"reason":  string(result.Skipped),
		})
		return result, nil
	}
	s.log.Debug("Sync attempt finished", map[string]interface{}{
		"trigger":   string(t),
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
	return result, nil
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning     bool       `json:"is_running"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastTrigger   Trigger    `json:"last_trigger,omitempty"`
	Attempts      int        `json:"attempts"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:   s.isRunning,
		LastTrigger: s.lastTrigger,
		Attempts:    s.attempts,
	}
	if !s.nextRunAt.IsZero() {
		next := s.nextRunAt
		status.NextRunAt = &next
	}
	if !s.lastAttempt.IsZero() {
		last := s.lastAttempt
		status.LastAttemptAt = &last
	}
	return status
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
