package sync

import (
	"context"
	"database/sql"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cache"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/cadence"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/connectivity"
	"github.com/kimhsiao/resellerdesk/backend/internal/sync/queue"
	"github.com/kimhsiao/resellerdesk/backend/internal/uuid"
)

var _ SyncEngineInterface = (*SyncEngine)(nil)

// DefaultRemoteTimeout bounds each remote call made during a pass.
const DefaultRemoteTimeout = 30 * time.Second

// Deps wires the engine to its collaborators. DB, Queue, Cache, Monitor and
// Remote are required.
type Deps struct {
	DB       *sql.DB
	Queue    *queue.Store
	Cache    *cache.Cache
	Monitor  *connectivity.Monitor
	Remote   RemoteStore
	Notifier Notifier
	Cadence  *cadence.Cadence
	Sealer   FieldSealer

	// RemoteTimeout defaults to DefaultRemoteTimeout.
	RemoteTimeout time.Duration
}

// SyncEngine accepts local writes while offline and replays them into the
// remote store, in submission order, once connectivity allows.
type SyncEngine struct {
	db       *sql.DB
	queue    *queue.Store
	cache    *cache.Cache
	monitor  *connectivity.Monitor
	remote   RemoteStore
	notifier Notifier
	cadence  *cadence.Cadence
	sealer   FieldSealer
	timeout  time.Duration

	syncing atomic.Bool

	mu         gosync.RWMutex
	lastSyncAt *time.Time
	nextSyncAt *time.Time

	passes      gosync.WaitGroup
	unsubscribe func()
	now         func() time.Time
	log         *logging.Logger
}

// NewSyncEngine creates an engine and restores the persisted last sync time.
func NewSyncEngine(ctx context.Context, deps Deps) (*SyncEngine, error) {
	if deps.DB == nil || deps.Queue == nil || deps.Cache == nil || deps.Monitor == nil || deps.Remote == nil {
		return nil, apperrors.New(apperrors.ErrConfigInvalid, "sync engine requires db, queue, cache, monitor and remote")
	}

	e := &SyncEngine{
		db:       deps.DB,
		queue:    deps.Queue,
		cache:    deps.Cache,
		monitor:  deps.Monitor,
		remote:   deps.Remote,
		notifier: deps.Notifier,
		cadence:  deps.Cadence,
		sealer:   deps.Sealer,
		timeout:  deps.RemoteTimeout,
		now:      time.Now,
		log:      logging.Component("sync"),
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.timeout <= 0 {
		e.timeout = DefaultRemoteTimeout
	}

	last, err := loadLastSync(ctx, e.db)
	if err != nil {
		return nil, err
	}
	e.lastSyncAt = last
	e.scheduleNext(e.now())

	e.unsubscribe = e.monitor.Subscribe(e.notifier.NotifyConnectivityChanged)
	return e, nil
}

// Close detaches the engine from the monitor and waits for background passes.
func (e *SyncEngine) Close() {
	e.unsubscribe()
	e.passes.Wait()
}

// Enqueue records a local write. The mutation is durable and the cache shows
// it before Enqueue returns. Inserts without an id get a generated one.
// Once the mutation is queued Enqueue succeeds; a failed cache update is
// logged and repaired by the next RefreshCache.
// When online, a pass is started in the background.
func (e *SyncEngine) Enqueue(ctx context.Context, table models.Table, op models.Operation, payload map[string]interface{}) (string, error) {
	table, err := models.ParseTable(string(table))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidTable, "invalid table", err)
	}
	op, err = models.ParseOperation(string(op))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidOperation, "invalid operation", err)
	}

	record := models.MergePayload(nil, payload)
	if _, ok := models.RecordIDOf(record); !ok {
		if op != models.OperationInsert {
			return "", apperrors.Newf(apperrors.ErrInvalid, "%s on %s requires payload field %q", op, table, models.IDField)
		}
		record[models.IDField] = uuid.New()
	}

	if e.sealer != nil {
		sealed, err := e.sealer.Seal(record)
		if err != nil {
			return "", err
		}
		record = sealed
	}

	id, err := e.queue.Append(ctx, &models.PendingMutation{
		Table:     table,
		Operation: op,
		Payload:   record,
	})
	if err != nil {
		return "", err
	}

	if err := e.cache.Patch(ctx, table, op, record); err != nil {
		e.log.Warn("Failed to update cache after enqueue", map[string]interface{}{
			"id":    id,
			"table": string(table),
			"error": err.Error(),
		})
	}

	if e.monitor.IsOnline() {
		e.reconcileAsync()
	}
	return id, nil
}

func (e *SyncEngine) reconcileAsync() {
	e.passes.Add(1)
	go func() {
		defer e.passes.Done()
		if _, err := e.Reconcile(context.Background()); err != nil {
			e.log.Error("Background sync failed", err)
		}
	}()
}

// ForceSync runs a reconciliation pass now.
func (e *SyncEngine) ForceSync(ctx context.Context) (*SyncResult, error) {
	return e.Reconcile(ctx)
}

// Reconcile drains the queue into the remote store. Only one pass runs at a
// time; a call made while a pass is active, or while offline, is declined
// and reported through SyncResult.Skipped. Remote failures are counted and
// the entry is kept for the next pass. Local storage errors abort the pass.
func (e *SyncEngine) Reconcile(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: e.now()}

	if !e.syncing.CompareAndSwap(false, true) {
		result.Skipped = SkipAlreadySyncing
		result.finish(e.now())
		e.log.Debug("Sync already in progress, skipping")
		return result, nil
	}
	if !e.monitor.IsOnline() {
		e.syncing.Store(false)
		result.Skipped = SkipOffline
		result.finish(e.now())
		e.scheduleNext(result.EndTime)
		e.log.Debug("Offline, skipping sync")
		return result, nil
	}

	// Passes outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)

	err := e.drain(ctx, result)
	e.syncing.Store(false)
	if err != nil {
		result.Error = err.Error()
		result.finish(e.now())
		e.scheduleNext(result.EndTime)
		e.log.Error("Sync aborted", err, map[string]interface{}{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
		})
		return result, err
	}

	end := e.now()
	if err := e.markSynced(ctx, end); err != nil {
		result.Error = err.Error()
		result.finish(end)
		e.scheduleNext(end)
		return result, err
	}
	result.finish(end)

	if result.Succeeded > 0 {
		e.notifier.NotifySuccess(result.Succeeded)
	}
	if result.Failed > 0 {
		e.notifier.NotifyError(result.Failed)
	}

	if result.Succeeded > 0 || result.Failed > 0 {
		e.log.Info("Sync completed", map[string]interface{}{
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
			"duration":  result.Duration.String(),
		})
	}
	return result, nil
}

func (e *SyncEngine) drain(ctx context.Context, result *SyncResult) error {
	// Every listed entry stays in flight until the queue reflects its
	// outcome, so writes made during the pass are appended rather than
	// merged into entries this pass already holds.
	pending, err := e.queue.Snapshot(ctx)
	if err != nil {
		return err
	}
	held := make([]string, len(pending))
	for i, m := range pending {
		held[i] = m.ID
	}
	defer func() { e.queue.EndSend(held...) }()

	for i, m := range pending {
		sendErr := e.send(ctx, m)

		if sendErr != nil {
			result.Failed++
			e.log.Warn("Mutation rejected by remote", map[string]interface{}{
				"id":        m.ID,
				"table":     string(m.Table),
				"operation": string(m.Operation),
				"record_id": m.RecordID,
				"error":     sendErr.Error(),
			})
			err := e.queue.MarkFailed(ctx, m.ID, sendErr)
			if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			e.queue.EndSend(m.ID)
			held[i] = ""
			continue
		}

		result.Succeeded++
		err := e.queue.RemoveByID(ctx, m.ID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		e.queue.EndSend(m.ID)
		held[i] = ""
		e.confirm(ctx, m)
	}
	return nil
}

func (e *SyncEngine) send(ctx context.Context, m *models.PendingMutation) error {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	switch m.Operation {
	case models.OperationInsert:
		return e.remote.Insert(callCtx, m.Table, m.Payload)
	case models.OperationUpdate:
		fields := models.FieldsWithoutID(m.Payload)
		if len(fields) == 0 {
			return nil
		}
		return e.remote.Update(callCtx, m.Table, m.RecordID, fields)
	case models.OperationDelete:
		return e.remote.Delete(callCtx, m.Table, m.RecordID)
	}
	return apperrors.Newf(apperrors.ErrInvalidOperation, "unknown operation %q", m.Operation)
}

// confirm re-applies a delivered mutation to the cache unless newer local
// writes for the same record are still queued.
func (e *SyncEngine) confirm(ctx context.Context, m *models.PendingMutation) {
	n, err := e.queue.CountFor(ctx, m.Table, m.RecordID)
	if err != nil || n > 0 {
		return
	}
	if err := e.cache.Patch(ctx, m.Table, m.Operation, m.Payload); err != nil {
		e.log.Warn("Failed to update cache after sync", map[string]interface{}{
			"table":     string(m.Table),
			"record_id": m.RecordID,
			"error":     err.Error(),
		})
	}
}

func (e *SyncEngine) markSynced(ctx context.Context, at time.Time) error {
	if err := saveLastSync(ctx, e.db, at); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastSyncAt = &at
	e.mu.Unlock()
	e.scheduleNext(at)
	return nil
}

func (e *SyncEngine) scheduleNext(now time.Time) {
	if e.cadence == nil {
		return
	}
	next := e.cadence.Next(now)
	e.mu.Lock()
	e.nextSyncAt = &next
	e.mu.Unlock()
}

// GetCached returns the cached records of a table.
func (e *SyncEngine) GetCached(ctx context.Context, table models.Table) ([]map[string]interface{}, error) {
	return e.cache.Read(ctx, table)
}

// RefreshCache replaces a table snapshot with server records. Writes that
// are still queued for that table are applied on top so they stay visible.
func (e *SyncEngine) RefreshCache(ctx context.Context, table models.Table, records []map[string]interface{}) error {
	if err := e.cache.ReplaceTable(ctx, table, records); err != nil {
		return err
	}

	pending, err := e.queue.ListOrdered(ctx)
	if err != nil {
		return err
	}
	for _, m := range pending {
		if m.Table != table {
			continue
		}
		if err := e.cache.Patch(ctx, table, m.Operation, m.Payload); err != nil {
			return err
		}
	}
	return nil
}

// FetchTable reads a table from the remote store and refreshes the cache
// with it. It returns the number of records fetched.
func (e *SyncEngine) FetchTable(ctx context.Context, table models.Table) (int, error) {
	if !table.Valid() {
		return 0, apperrors.Newf(apperrors.ErrInvalidTable, "unknown table %q", table)
	}
	fetcher, ok := e.remote.(Fetcher)
	if !ok {
		return 0, apperrors.New(apperrors.ErrInvalid, "remote store cannot fetch tables")
	}
	if !e.monitor.IsOnline() {
		return 0, apperrors.New(apperrors.ErrSyncFailed, "offline")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	records, err := fetcher.Fetch(callCtx, table)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return 0, err
		}
		return 0, apperrors.Wrap(apperrors.ErrSyncFailed, "fetch "+string(table), err)
	}
	if err := e.RefreshCache(ctx, table, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Pending lists queued mutations in replay order.
func (e *SyncEngine) Pending(ctx context.Context) ([]*models.PendingMutation, error) {
	return e.queue.ListOrdered(ctx)
}

// PendingByID returns one queued mutation.
func (e *SyncEngine) PendingByID(ctx context.Context, id string) (*models.PendingMutation, error) {
	return e.queue.Get(ctx, id)
}

// GetCachedRecord returns one cached record.
func (e *SyncEngine) GetCachedRecord(ctx context.Context, table models.Table, id string) (map[string]interface{}, error) {
	if !table.Valid() {
		return nil, apperrors.Newf(apperrors.ErrInvalidTable, "unknown table %q", table)
	}
	return e.cache.Get(ctx, table, id)
}

// SetOnline relays the platform connectivity signal.
func (e *SyncEngine) SetOnline(online bool) {
	e.monitor.SetOnline(online)
}

// IsSyncing reports whether a pass is running.
func (e *SyncEngine) IsSyncing() bool {
	return e.syncing.Load()
}

// State returns the observable sync state.
func (e *SyncEngine) State(ctx context.Context) (models.SyncState, error) {
	count, err := e.queue.Count(ctx)
	if err != nil {
		return models.SyncState{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return models.SyncState{
		IsOnline:     e.monitor.IsOnline(),
		IsSyncing:    e.syncing.Load(),
		PendingCount: count,
		LastSyncAt:   copyTime(e.lastSyncAt),
		NextSyncAt:   copyTime(e.nextSyncAt),
	}, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
