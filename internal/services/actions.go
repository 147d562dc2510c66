package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/repos"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// RunSnapshot is the read model handed to API callers: the run row plus its
// timeline and a presentation status that folds contact attempts in.
type RunSnapshot struct {
	Run *types.AllocationRun `json:"run"`
	// Status is the derived presentation status. It equals Run.Status except
	// for ranked runs with at least one contact attempt, which present as
	// "contacted".
	Status   string                   `json:"status"`
	Timeline []*types.AllocationEvent `json:"timeline"`
}

// ActionService covers the operator-driven half of a run: contacting a
// ranked candidate and recording a final acceptance.
type ActionService interface {
	Contact(ctx context.Context, runID, candidateID uuid.UUID, message string) (*RunSnapshot, error)
	Accept(ctx context.Context, runID, candidateID uuid.UUID) (*RunSnapshot, error)
	Snapshot(ctx context.Context, runID uuid.UUID) (*RunSnapshot, error)
	LatestForDonor(ctx context.Context, donorID uuid.UUID) (*RunSnapshot, error)
	History(ctx context.Context, limit int) ([]*RunSnapshot, error)
}

type actionService struct {
	db  *gorm.DB
	log *logger.Logger

	runRepo   repos.AllocationRunRepo
	eventRepo repos.AllocationEventRepo

	alerts   AlertNotifier
	notifier RunNotifier
}

func NewActionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	runRepo repos.AllocationRunRepo,
	eventRepo repos.AllocationEventRepo,
	alerts AlertNotifier,
	notifier RunNotifier,
) ActionService {
	return &actionService{
		db:        db,
		log:       baseLog.With("service", "ActionService"),
		runRepo:   runRepo,
		eventRepo: eventRepo,
		alerts:    alerts,
		notifier:  notifier,
	}
}

// Contact sends the allocation SMS to one ranked candidate and records the
// attempt on the timeline. It never mutates the run's persisted status, so
// it is allowed any number of times and even after the run is terminal.
func (s *actionService) Contact(ctx context.Context, runID, candidateID uuid.UUID, message string) (*RunSnapshot, error) {
	run, err := s.runRepo.GetByID(ctx, nil, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.ErrRunNotFound
	}

	rc, ok, err := run.RankedCandidate(candidateID)
	if err != nil {
		return nil, fmt.Errorf("decode ranked candidates: %w", err)
	}
	if !ok {
		return nil, errors.ErrCandidateNotRanked
	}

	if message == "" {
		message = fmt.Sprintf("Organ available for %s. Reply ACCEPT to proceed.", rc.Candidate.Name)
	}

	delivery := s.alerts.Notify(ctx, rc.Candidate.Phone, message)

	payload, _ := json.Marshal(map[string]any{
		"candidate_id": candidateID,
		"message":      message,
		"delivered":    delivery.Delivered,
		"detail":       delivery.Detail,
	})
	now := time.Now()
	if _, err := s.eventRepo.Append(ctx, nil, []*types.AllocationEvent{{
		ID:        uuid.New(),
		RunID:     runID,
		Kind:      types.EventContactAttempted,
		Detail:    fmt.Sprintf("contacted %s: %s", rc.Candidate.Name, delivery.Detail),
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
	}}); err != nil {
		return nil, fmt.Errorf("append contact event: %w", err)
	}

	s.notifier.ContactAttempted(runID, rc.Candidate, delivery)
	s.log.Info("Contact attempted", "run_id", runID, "candidate_id", candidateID, "delivered", delivery.Delivered)

	return s.Snapshot(ctx, runID)
}

// Accept records the final allocation decision. The compare-and-set lives
// in the repo layer so racing instances agree on a single winner.
func (s *actionService) Accept(ctx context.Context, runID, candidateID uuid.UUID) (*RunSnapshot, error) {
	run, err := s.runRepo.GetByID(ctx, nil, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.ErrRunNotFound
	}
	if run.Terminal() {
		return nil, errors.ErrAlreadyAllocated
	}

	rc, ok, err := run.RankedCandidate(candidateID)
	if err != nil {
		return nil, fmt.Errorf("decode ranked candidates: %w", err)
	}
	if !ok {
		return nil, errors.ErrCandidateNotRanked
	}

	now := time.Now()
	if err := s.runRepo.AcceptCandidate(ctx, nil, runID, candidateID, now); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"candidate_id": candidateID,
		"accepted_at":  now,
	})
	if _, err := s.eventRepo.Append(ctx, nil, []*types.AllocationEvent{{
		ID:        uuid.New(),
		RunID:     runID,
		Kind:      types.EventAllocationAccepted,
		Detail:    fmt.Sprintf("allocation accepted for %s", rc.Candidate.Name),
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
	}}); err != nil {
		s.log.Error("Failed to append acceptance event", "run_id", runID, "error", err)
	}

	s.notifier.AllocationAccepted(runID, rc.Candidate, now)
	s.log.Info("Allocation accepted", "run_id", runID, "candidate_id", candidateID)

	return s.Snapshot(ctx, runID)
}

func (s *actionService) Snapshot(ctx context.Context, runID uuid.UUID) (*RunSnapshot, error) {
	run, err := s.runRepo.GetByID(ctx, nil, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.ErrRunNotFound
	}
	timeline, err := s.eventRepo.ListByRunID(ctx, nil, runID)
	if err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}
	return &RunSnapshot{
		Run:      run,
		Status:   derivedStatus(run, timeline),
		Timeline: timeline,
	}, nil
}

func (s *actionService) LatestForDonor(ctx context.Context, donorID uuid.UUID) (*RunSnapshot, error) {
	run, err := s.runRepo.GetLatestByDonorID(ctx, nil, donorID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, errors.ErrRunNotFound
	}
	return s.Snapshot(ctx, run.ID)
}

func (s *actionService) History(ctx context.Context, limit int) ([]*RunSnapshot, error) {
	runs, err := s.runRepo.List(ctx, nil, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*RunSnapshot, 0, len(runs))
	for _, run := range runs {
		timeline, err := s.eventRepo.ListByRunID(ctx, nil, run.ID)
		if err != nil {
			return nil, fmt.Errorf("load timeline for run %s: %w", run.ID, err)
		}
		out = append(out, &RunSnapshot{
			Run:      run,
			Status:   derivedStatus(run, timeline),
			Timeline: timeline,
		})
	}
	return out, nil
}

// derivedStatus folds contact attempts into the presentation status: a
// ranked run with at least one contact attempt presents as "contacted".
// Terminal and in-flight statuses pass through unchanged.
func derivedStatus(run *types.AllocationRun, timeline []*types.AllocationEvent) string {
	if run.Status != types.RunStatusRanked {
		return run.Status
	}
	for _, evt := range timeline {
		if evt.Kind == types.EventContactAttempted {
			return types.RunStatusContacted
		}
	}
	return run.Status
}
