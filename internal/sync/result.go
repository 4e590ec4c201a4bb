package sync

import "time"

// SkipReason explains why a pass did no work.
type SkipReason string

const (
	SkipAlreadySyncing SkipReason = "already_syncing"
	SkipOffline        SkipReason = "offline"
)

// SyncResult represents the result of a reconciliation pass.
type SyncResult struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   SkipReason    `json:"skipped,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Declined reports whether the pass was not run at all.
func (r *SyncResult) Declined() bool {
	return r.Skipped != ""
}

func (r *SyncResult) finish(end time.Time) {
	r.EndTime = end
	r.Duration = end.Sub(r.StartTime)
}
