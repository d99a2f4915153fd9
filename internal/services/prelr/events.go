package prelr

import "time"

// Event types published while a sync runs.
const (
	EventHarvestCompleted = "harvest.completed"
	EventDetailSynced     = "detail.synced"
	EventDetailFailed     = "detail.failed"
	EventSyncCompleted    = "sync.completed"
)

// Event is a progress notification for dashboards.
type Event struct {
	Type       string    `json:"type"`
	InternalID string    `json:"internalId,omitempty"`
	Count      int       `json:"count,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Notifier receives sync events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
