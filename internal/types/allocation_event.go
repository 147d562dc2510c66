package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Timeline event kinds. The column is append-only: rows are inserted and
// never updated, deleted or reordered.
const (
	EventPipelineStep       = "pipeline-step"
	EventRankingComplete    = "ranking-complete"
	EventPipelineFailed     = "pipeline-failed"
	EventCandidateExcluded  = "candidate-excluded"
	EventContactAttempted   = "contact-attempted"
	EventAllocationAccepted = "allocation-accepted"
)

// AllocationEvent is one timeline entry for a run.
type AllocationEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"run_id"`
	Kind      string         `gorm:"column:kind;not null;index" json:"kind"`
	Detail    string         `gorm:"column:detail" json:"detail"`
	Payload   datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (AllocationEvent) TableName() string { return "allocation_event" }
