package service

// Event actions published while syncing.
const (
	EventRunStarted       = "run_started"
	EventRunFinished      = "run_finished"
	EventConflictDetected = "conflict_detected"
	EventConflictResolved = "conflict_resolved"
	EventItemEdited       = "item_edited"
	EventItemRefreshed    = "item_refreshed"
)

// Notifier receives sync events. The websocket hub implements it.
type Notifier interface {
	Publish(action string, payload interface{})
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, interface{}) {}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
