//go:build cgo

// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libresellerdesk.so (Android) / resellerdesk.framework (iOS)
//
// The host app owns connectivity detection and reports it through SetOnline.
// Every function returning *C.char hands ownership to the caller, who must
// release it with FreeString.
package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"unsafe"

	"github.com/kimhsiao/resellerdesk/backend/internal/app"
	"github.com/kimhsiao/resellerdesk/backend/internal/config"
	apperrors "github.com/kimhsiao/resellerdesk/backend/internal/errors"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/models"
)

var (
	mu      sync.Mutex
	core    *app.App
	lastErr string
	lastMu  sync.RWMutex
)

//export Init
// Init opens the local store in dataDir and starts the sync scheduler.
// configPath may be empty. Returns 0 on success.
func Init(dataDir, configPath *C.char) int32 {
	mu.Lock()
	defer mu.Unlock()
	if core != nil {
		return 0
	}

	cfg, err := config.LoadConfig(C.GoString(configPath), func(c *config.Config) {
		if dir := C.GoString(dataDir); dir != "" {
			c.DataDir = dir
		}
	})
	if err != nil {
		return fail(err)
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, nil, cfg.Connectivity.AssumeOnline)
	if err != nil {
		return fail(err)
	}
	a.StartBackground(ctx)
	core = a

	logging.Info("Mobile core initialized", map[string]interface{}{"data_dir": cfg.DataDir})
	return 0
}

//export Cleanup
// Cleanup stops the scheduler and closes the local store.
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if core != nil {
		core.Close()
		core = nil
	}
}

//export GetLastError
// GetLastError returns the last error as {"code":..., "message":...}.
func GetLastError() *C.char {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return C.CString(lastErr)
}

func fail(err error) int32 {
	body, _ := json.Marshal(map[string]string{
		"code":    string(apperrors.CodeOf(err)),
		"message": err.Error(),
	})
	lastMu.Lock()
	lastErr = string(body)
	lastMu.Unlock()
	return 1
}

func current() (*app.App, error) {
	mu.Lock()
	defer mu.Unlock()
	if core == nil {
		return nil, apperrors.New(apperrors.ErrInternal, "core not initialized")
	}
	return core, nil
}

func respond(v interface{}, err error) *C.char {
	if err != nil {
		fail(err)
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		fail(err)
		return nil
	}
	return C.CString(string(data))
}

// =====================================================
// Mutations
// =====================================================

//export Enqueue
// Enqueue queues a write. payload is a JSON object.
// Returns {"id": ...} or NULL on error.
func Enqueue(table, operation, payload *C.char) *C.char {
	a, err := current()
	if err != nil {
		return respond(nil, err)
	}
	record, err := models.DecodeRecord([]byte(C.GoString(payload)))
	if err != nil {
		return respond(nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid payload", err))
	}
	id, err := a.Engine.Enqueue(context.Background(), models.Table(C.GoString(table)), models.Operation(C.GoString(operation)), record)
	return respond(map[string]string{"id": id}, err)
}

//export PendingList
// PendingList returns the queued mutations in replay order.
func PendingList() *C.char {
	a, err := current()
	if err != nil {
		return respond(nil, err)
	}
	items, err := a.Engine.Pending(context.Background())
	return respond(map[string]interface{}{"items": items, "total": len(items)}, err)
}

// =====================================================
// Sync
// =====================================================

//export ForceSync
// ForceSync runs a pass now and returns its result.
func ForceSync() *C.char {
	a, err := current()
	if err != nil {
		return respond(nil, err)
	}
	return respond(a.ForceSync(context.Background()))
}

//export SetOnline
// SetOnline reports a connectivity change from the host platform.
func SetOnline(online int32) {
	if a, err := current(); err == nil {
		a.Engine.SetOnline(online != 0)
	}
}

//export SyncState
// SyncState returns connectivity, queue size and sync times.
func SyncState() *C.char {
	a, err := current()
	if err != nil {
		return respond(nil, err)
	}
	return respond(a.Engine.State(context.Background()))
}

// =====================================================
// Cache
// =====================================================

//export GetCached
// GetCached returns the cached records of a table as a JSON array.
func GetCached(table *C.char) *C.char {
	a, err := current()
	if err != nil {
		return respond(nil, err)
	}
	return respond(a.Engine.GetCached(context.Background(), models.Table(C.GoString(table))))
}

//export RefreshCache
// RefreshCache replaces a cached table with a JSON array of server records.
// Returns 0 on success.
func RefreshCache(table, records *C.char) int32 {
	a, err := current()
	if err != nil {
		return fail(err)
	}
	var rows []map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(C.GoString(records)))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return fail(apperrors.Wrap(apperrors.ErrInvalid, "invalid records", err))
	}
	if err := a.Engine.RefreshCache(context.Background(), models.Table(C.GoString(table)), rows); err != nil {
		return fail(err)
	}
	return 0
}

//export FreeString
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {
	// Required for c-shared build mode; never executed.
}
