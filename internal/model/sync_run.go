package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RunType string

const (
	RunTypeFull        RunType = "full"
	RunTypeIncremental RunType = "incremental"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Trigger sources
const (
	TriggerScheduler = "scheduler"
	TriggerAPI       = "api"
	TriggerCLI       = "cli"
)

// SyncRun is one invocation of the sync engine. It is written only by the
// engine and never changes after it leaves the running state.
type SyncRun struct {
	ID          uuid.UUID          `gorm:"type:uuid;primary_key;" json:"id"`
	Type        RunType            `gorm:"type:varchar(20);not null" json:"type"`
	Direction   SyncDirection      `gorm:"type:varchar(20);not null" json:"direction"`
	EntityTypes datatypes.JSON     `gorm:"type:jsonb" json:"entity_types"`
	Status      RunStatus          `gorm:"type:varchar(20);not null;index" json:"status"`
	TriggeredBy string             `gorm:"type:varchar(100)" json:"triggered_by"`
	Strategy    ResolutionStrategy `gorm:"type:varchar(20)" json:"strategy"`
	DryRun      bool               `json:"dry_run"`

	StartedAt   time.Time  `gorm:"index" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	DurationMs  int64      `json:"duration_ms"`

	// Totals across kinds
	Fetched   int `json:"fetched"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
	Conflicts int `json:"conflicts"`
	Errors    int `json:"errors"`

	ErrorMessage string         `gorm:"type:text" json:"error_message,omitempty"`
	Result       datatypes.JSON `gorm:"type:jsonb" json:"result"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SyncRun) TableName() string {
	return "pricebook_sync_runs"
}

func (r *SyncRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// IsFinal reports whether the run has been finalized.
func (r *SyncRun) IsFinal() bool {
	return r.Status != RunStatusRunning
}
