package model

// KindStats counts what one run did (or would do, in dry-run) to one kind.
type KindStats struct {
	Fetched           int `json:"fetched"`
	Created           int `json:"created"`
	Updated           int `json:"updated"`
	Deleted           int `json:"deleted"`
	Relinked          int `json:"relinked"`
	Unchanged         int `json:"unchanged"`
	Skipped           int `json:"skipped"`
	Conflicts         int `json:"conflicts"`
	ConflictsResolved int `json:"conflicts_resolved"`
	Pushed            int `json:"pushed"`
	Errors            int `json:"errors"`
}

func (s *KindStats) Add(o KindStats) {
	s.Fetched += o.Fetched
	s.Created += o.Created
	s.Updated += o.Updated
	s.Deleted += o.Deleted
	s.Relinked += o.Relinked
	s.Unchanged += o.Unchanged
	s.Skipped += o.Skipped
	s.Conflicts += o.Conflicts
	s.ConflictsResolved += o.ConflictsResolved
	s.Pushed += o.Pushed
	s.Errors += o.Errors
}

// RecordError is a per-record failure that did not abort the batch.
type RecordError struct {
	Kind       EntityType `json:"kind"`
	UpstreamID int64      `json:"upstream_id"`
	Action     string     `json:"action"`
	Message    string     `json:"message"`
}

// RunResult is serialized into SyncRun.Result when the run is finalized.
type RunResult struct {
	RunID    string                    `json:"run_id"`
	Status   RunStatus                 `json:"status"`
	DryRun   bool                      `json:"dry_run"`
	Strategy ResolutionStrategy        `json:"strategy"`
	Totals   KindStats                 `json:"totals"`
	ByKind   map[EntityType]*KindStats `json:"by_kind"`
	Errors   []RecordError             `json:"errors"`
	Error    string                    `json:"error,omitempty"`
	Duration int64                     `json:"duration_ms"`
}

// ApplyTotals copies the summed counters onto the run record.
func (r *SyncRun) ApplyTotals(t KindStats) {
	r.Fetched = t.Fetched
	r.Created = t.Created
	r.Updated = t.Updated
	r.Deleted = t.Deleted
	r.Skipped = t.Skipped
	r.Conflicts = t.Conflicts
	r.Errors = t.Errors
}
