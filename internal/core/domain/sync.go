package domain

import "time"

// BatchStage names the step at which a batch item failed
type BatchStage string

const (
	BatchStageValidate BatchStage = "validate"
	BatchStageIndex    BatchStage = "index"
	BatchStagePublish  BatchStage = "publish"
)

// BatchFailure describes one failed item of a bulk operation
type BatchFailure struct {
	ID    string     `json:"id"`
	Stage BatchStage `json:"stage"`
	Error string     `json:"error"`
}

// BatchResult reports the outcome of a bulk sync.
// There is no rollback: Succeeded items are in the index even when others failed.
type BatchResult struct {
	Kind      IndexKind      `json:"kind"`
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed,omitempty"`
}

// NewBatchResult creates an empty result for kind
func NewBatchResult(kind IndexKind) *BatchResult {
	return &BatchResult{Kind: kind, Succeeded: []string{}}
}

// Fail records a failed item
func (r *BatchResult) Fail(id string, stage BatchStage, err error) {
	r.Failed = append(r.Failed, BatchFailure{ID: id, Stage: stage, Error: err.Error()})
}

// FailedIDs returns the ids of failed items, for retrying just that subset
func (r *BatchResult) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.ID
	}
	return ids
}

// HasFailures reports whether any item failed
func (r *BatchResult) HasFailures() bool {
	return len(r.Failed) > 0
}

// ResyncReport summarizes a full resynchronization from the relational store
type ResyncReport struct {
	FlightsSynced int            `json:"flights_synced"`
	StopsSynced   int            `json:"stops_synced"`
	SeatsSynced   int            `json:"seats_synced"`
	Failures      []BatchFailure `json:"failures,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	Duration      time.Duration  `json:"duration"`

	// LockToken is the fencing token of the resync lock the run held, if any
	LockToken int64 `json:"lock_token,omitempty"`
}

// Lease is a held distributed lock. Token grows every time the lock changes
// hands, so a holder that outlived its lease can tell it has been superseded.
type Lease struct {
	Name      string    `json:"name"`
	Token     int64     `json:"token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero for backends without TTLs
}

// Expired reports whether a TTL-bound lease has run out at now
func (l *Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && !now.Before(l.ExpiresAt)
}

// ReconcileResult reports what one booking event did to the index
type ReconcileResult struct {
	EventType string         `json:"event_type"`
	Available bool           `json:"available"`
	Updated   []string       `json:"updated"`
	Skipped   []string       `json:"skipped,omitempty"` // seat ids absent from the index
	Failed    []BatchFailure `json:"failed,omitempty"`
}

// ReconcileStats holds running counters for the availability reconciler
type ReconcileStats struct {
	EventsApplied int64 `json:"events_applied"`
	EventsDropped int64 `json:"events_dropped"`
	SeatsUpdated  int64 `json:"seats_updated"`
	SeatsSkipped  int64 `json:"seats_skipped"`
	SeatsFailed   int64 `json:"seats_failed"`
}
