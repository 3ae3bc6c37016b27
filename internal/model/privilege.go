package model

// Privilege codes carried in bearer tokens and checked by the trigger surface.
const (
	PrivSyncView         = "sync:view"
	PrivSyncTrigger      = "sync:trigger"
	PrivSyncResolve      = "sync:resolve"
	PrivSchedulerControl = "sync:scheduler"
	PrivPricebookUpdate  = "pricebook:update"
)

// Privilege describes one privilege code.
type Privilege struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DefaultPrivileges lists every privilege the API understands.
var DefaultPrivileges = []Privilege{
	{Code: PrivSyncView, Name: "View Sync Status"},
	{Code: PrivSyncTrigger, Name: "Trigger Sync"},
	{Code: PrivSyncResolve, Name: "Resolve Sync Conflict"},
	{Code: PrivSchedulerControl, Name: "Start/Stop Sync Scheduler"},
	{Code: PrivPricebookUpdate, Name: "Edit Pricebook Item"},
}

// AllModels returns every table this service owns, for AutoMigrate.
func AllModels() []any {
	return []any{
		&Category{}, &Material{}, &Service{}, &Equipment{},
		&SyncRun{}, &SyncConflict{}, &ChangeLog{}, &SyncLock{}, &SyncState{},
	}
}
