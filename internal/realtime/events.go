package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast event kinds. These mirror the run timeline kinds that observers
// care about; purely internal timeline rows (candidate exclusions) are not
// broadcast and must be read via the run snapshot.
type EventKind string

const (
	EventPipelineStep       EventKind = "pipeline-step"
	EventRankingComplete    EventKind = "ranking-complete"
	EventPipelineFailed     EventKind = "pipeline-failed"
	EventContactAttempted   EventKind = "contact-attempted"
	EventAllocationAccepted EventKind = "allocation-accepted"
)

// ChannelAllocations carries every event for every run. Per-run channels
// carry only that run's events.
const ChannelAllocations = "allocations"

func RunChannel(runID uuid.UUID) string {
	return "run:" + runID.String()
}

// Event is the wire shape pushed to subscribers. Delivery is at-least-once
// per connected subscriber; late joiners reconcile through a snapshot read
// of the run, not through event replay.
type Event struct {
	Channel   string    `json:"channel"`
	Kind      EventKind `json:"kind"`
	RunID     uuid.UUID `json:"run_id"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
