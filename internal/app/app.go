// Package app assembles the sync components from a Config. The daemon, the
// CLI and the mobile bridge all start from here.
package app

import (
	"context"
	"fmt"

	"github.com/kimhsiao/resellerdesk/backend/internal/config"
	"github.com/kimhsiao/resellerdesk/backend/internal/crypto"
	"github.com/kimhsiao/resellerdesk/backend/internal/db"
	"github.com/kimhsiao/resellerdesk/backend/internal/remote"
	syncpkg "github.com/kimhsiao/resellerdesk/backend/internal/sync"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cache"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cadence"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/connectivity"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/queue"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/scheduler"
)

// App is the set of components every entry point works with.
type App struct {
	Config  *config.Config
	DB      *db.DB
	Queue   *queue.Store
	Cache   *cache.Cache
	Monitor *connectivity.Monitor
	Remote  remote.Store
	Sealer  *crypto.Sealer
	Cadence *cadence.Cadence
	Engine  *syncpkg.SyncEngine

	scheduler *scheduler.Scheduler
	prober    *connectivity.Prober
}

// Open opens the local database and builds the engine around it. The
// monitor starts in the given state. notifier may be nil.
func Open(ctx context.Context, cfg *config.Config, notifier syncpkg.Notifier, online bool) (*App, error) {
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cad, err := cfg.Cadence()
	if err != nil {
		database.Close()
		return nil, err
	}

	store, err := remote.Open(ctx, cfg.RemoteOptions())
	if err != nil {
		database.Close()
		return nil, err
	}

	a := &App{
		Config:  cfg,
		DB:      database,
		Queue:   queue.NewStore(database.DB, cfg.QueueConfig()),
		Cache:   cache.New(database.DB),
		Monitor: connectivity.NewMonitor(online),
		Remote:  store,
		Sealer:  crypto.NewSealer(cfg.Crypto.MachineID, cfg.Crypto.SealedFields),
		Cadence: cad,
	}

	deps := syncpkg.Deps{
		DB:            database.DB,
		Queue:         a.Queue,
		Cache:         a.Cache,
		Monitor:       a.Monitor,
		Remote:        store,
		Notifier:      notifier,
		Cadence:       cad,
		Sealer:        a.Sealer,
		RemoteTimeout: cfg.Remote.Timeout,
	}
	a.Engine, err = syncpkg.NewSyncEngine(ctx, deps)
	if err != nil {
		store.Close()
		database.Close()
		return nil, err
	}
	return a, nil
}

// StartBackground starts the scheduler and, when a probe URL is configured,
// the connectivity prober. It returns the scheduler for status reporting.
func (a *App) StartBackground(ctx context.Context) *scheduler.Scheduler {
	if a.scheduler != nil {
		return a.scheduler
	}
	a.scheduler = scheduler.NewScheduler(a.Engine, &scheduler.SchedulerConfig{
		Cadence: a.Cadence,
		Monitor: a.Monitor,
	})
	a.scheduler.Start(ctx)

	if url := a.Config.Connectivity.ProbeURL; url != "" {
		a.prober = connectivity.NewProber(url, a.Config.Connectivity.ProbeInterval, a.Monitor)
		a.prober.Start()
	}
	return a.scheduler
}

// ForceSync runs a pass now. Once StartBackground has run, the pass goes
// through the scheduler so its status and next cadence time stay current.
func (a *App) ForceSync(ctx context.Context) (*syncpkg.SyncResult, error) {
	if a.scheduler != nil {
		return a.scheduler.ForceSync(ctx)
	}
	return a.Engine.ForceSync(ctx)
}

// Close stops background work and the engine, then releases the remote
// store and the database.
func (a *App) Close() {
	if a.prober != nil {
		a.prober.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.Engine.Close()
	a.Remote.Close()
	a.DB.Close()
}

// ProbeOnce reports connectivity for one-shot commands. Without a probe URL
// the network is assumed reachable.
func ProbeOnce(ctx context.Context, cfg *config.Config) bool {
	if cfg.Connectivity.AssumeOnline || cfg.Connectivity.ProbeURL == "" {
		return true
	}
	monitor := connectivity.NewMonitor(false)
	return connectivity.NewProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval, monitor).Probe(ctx)
}
