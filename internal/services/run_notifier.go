package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/liverlink/liverlink-backend/internal/realtime"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// RunNotifier publishes run lifecycle events to observers. Every event goes
// out on the global allocations channel and on the run's own channel, so a
// dashboard can follow everything while a detail view follows one run.
type RunNotifier interface {
	PipelineStep(runID uuid.UUID, stage string, detail string)
	RankingComplete(runID uuid.UUID, ranked []types.RankedCandidate)
	PipelineFailed(runID uuid.UUID, stage string, errorMessage string)
	ContactAttempted(runID uuid.UUID, candidate types.CandidateSnapshot, delivery Delivery)
	AllocationAccepted(runID uuid.UUID, candidate types.CandidateSnapshot, at time.Time)
}

type runNotifier struct {
	emit Emitter
}

func NewRunNotifier(emit Emitter) RunNotifier {
	return &runNotifier{emit: emit}
}

func (n *runNotifier) publish(kind realtime.EventKind, runID uuid.UUID, payload any) {
	if n == nil || n.emit == nil || runID == uuid.Nil {
		return
	}
	now := time.Now()
	for _, channel := range []string{realtime.ChannelAllocations, realtime.RunChannel(runID)} {
		n.emit.Emit(context.Background(), realtime.Event{
			Channel:   channel,
			Kind:      kind,
			RunID:     runID,
			Payload:   payload,
			Timestamp: now,
		})
	}
}

func (n *runNotifier) PipelineStep(runID uuid.UUID, stage string, detail string) {
	n.publish(realtime.EventPipelineStep, runID, map[string]any{
		"stage":  stage,
		"detail": detail,
	})
}

func (n *runNotifier) RankingComplete(runID uuid.UUID, ranked []types.RankedCandidate) {
	n.publish(realtime.EventRankingComplete, runID, map[string]any{
		"ranked_candidates": ranked,
	})
}

func (n *runNotifier) PipelineFailed(runID uuid.UUID, stage string, errorMessage string) {
	n.publish(realtime.EventPipelineFailed, runID, map[string]any{
		"stage": stage,
		"error": errorMessage,
	})
}

func (n *runNotifier) ContactAttempted(runID uuid.UUID, candidate types.CandidateSnapshot, delivery Delivery) {
	n.publish(realtime.EventContactAttempted, runID, map[string]any{
		"candidate_id":   candidate.ID,
		"candidate_name": candidate.Name,
		"delivered":      delivery.Delivered,
		"detail":         delivery.Detail,
	})
}

func (n *runNotifier) AllocationAccepted(runID uuid.UUID, candidate types.CandidateSnapshot, at time.Time) {
	n.publish(realtime.EventAllocationAccepted, runID, map[string]any{
		"candidate_id":   candidate.ID,
		"candidate_name": candidate.Name,
		"accepted_at":    at,
	})
}
