package services

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/scoring"
	"github.com/liverlink/liverlink-backend/internal/types"
)

func newRankedRun(runRepo *fakeRunRepo, candidates ...types.CandidateSnapshot) *types.AllocationRun {
	ranked := make([]types.RankedCandidate, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, types.RankedCandidate{Candidate: c, Score: scoring.Breakdown{Composite: 0.5}})
	}
	raw, _ := json.Marshal(ranked)
	run := &types.AllocationRun{
		ID:               uuid.New(),
		DonorID:          uuid.New(),
		Status:           types.RunStatusRanked,
		Stage:            types.RunStageDone,
		RankedCandidates: datatypes.JSON(raw),
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	runRepo.runs[run.ID] = run
	return run
}

func newTestActionService(runRepo *fakeRunRepo, eventRepo *fakeEventRepo, alerts AlertNotifier) ActionService {
	return NewActionService(nil, testLogger(), runRepo, eventRepo, alerts, noopRunNotifier{})
}

func TestContact_AppendsTimelineWithoutMutatingStatus(t *testing.T) {
	runRepo := newFakeRunRepo()
	eventRepo := &fakeEventRepo{}
	alerts := &fakeAlerts{delivery: Delivery{Delivered: true, Detail: "sms sent"}}
	svc := newTestActionService(runRepo, eventRepo, alerts)

	candidate := types.CandidateSnapshot{ID: uuid.New(), Name: "Jordan Reyes", Phone: "+15550001111"}
	run := newRankedRun(runRepo, candidate)

	snap, err := svc.Contact(context.Background(), run.ID, candidate.ID, "")
	if err != nil {
		t.Fatalf("contact: %v", err)
	}

	// Persisted status stays ranked; only the presentation status changes.
	stored, _ := runRepo.GetByID(context.Background(), nil, run.ID)
	if stored.Status != types.RunStatusRanked {
		t.Fatalf("contact mutated persisted status: %q", stored.Status)
	}
	if snap.Status != types.RunStatusContacted {
		t.Fatalf("expected derived status=contacted got %q", snap.Status)
	}

	kinds := eventRepo.kinds(run.ID)
	if len(kinds) != 1 || kinds[0] != types.EventContactAttempted {
		t.Fatalf("expected one contact-attempted entry, got %v", kinds)
	}
	if len(alerts.sent) != 1 {
		t.Fatalf("expected one SMS, got %d", len(alerts.sent))
	}
	if alerts.sent[0] != "Organ available for Jordan Reyes. Reply ACCEPT to proceed." {
		t.Fatalf("unexpected default message: %q", alerts.sent[0])
	}
}

func TestContact_RepeatedContactsAllAppend(t *testing.T) {
	runRepo := newFakeRunRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestActionService(runRepo, eventRepo, &fakeAlerts{delivery: Delivery{Delivered: true}})

	candidate := types.CandidateSnapshot{ID: uuid.New(), Name: "x", Phone: "+15550001111"}
	run := newRankedRun(runRepo, candidate)

	for i := 0; i < 3; i++ {
		if _, err := svc.Contact(context.Background(), run.ID, candidate.ID, "custom message"); err != nil {
			t.Fatalf("contact %d: %v", i, err)
		}
	}
	if got := len(eventRepo.kinds(run.ID)); got != 3 {
		t.Fatalf("expected 3 contact entries got %d", got)
	}
	stored, _ := runRepo.GetByID(context.Background(), nil, run.ID)
	if stored.Status != types.RunStatusRanked {
		t.Fatalf("repeated contact mutated status: %q", stored.Status)
	}
}

func TestContact_DeliveryFailureIsRecordedNotReturned(t *testing.T) {
	runRepo := newFakeRunRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestActionService(runRepo, eventRepo, &fakeAlerts{delivery: Delivery{Delivered: false, Detail: "sms delivery failed: 500"}})

	candidate := types.CandidateSnapshot{ID: uuid.New(), Name: "x", Phone: "+15550001111"}
	run := newRankedRun(runRepo, candidate)

	snap, err := svc.Contact(context.Background(), run.ID, candidate.ID, "")
	if err != nil {
		t.Fatalf("delivery failure must not fail the operation: %v", err)
	}
	if len(snap.Timeline) != 1 {
		t.Fatalf("expected the attempt on the timeline, got %d entries", len(snap.Timeline))
	}
	var payload struct {
		Delivered bool   `json:"delivered"`
		Detail    string `json:"detail"`
	}
	if err := json.Unmarshal(snap.Timeline[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Delivered || payload.Detail == "" {
		t.Fatalf("expected delivered=false with detail, got %+v", payload)
	}
}

func TestContact_UnrankedCandidateRejected(t *testing.T) {
	runRepo := newFakeRunRepo()
	svc := newTestActionService(runRepo, &fakeEventRepo{}, &fakeAlerts{})

	run := newRankedRun(runRepo, types.CandidateSnapshot{ID: uuid.New(), Name: "ranked"})
	_, err := svc.Contact(context.Background(), run.ID, uuid.New(), "")
	if !goerrors.Is(err, errors.ErrCandidateNotRanked) {
		t.Fatalf("expected ErrCandidateNotRanked got %v", err)
	}
}

func TestContact_UnknownRunRejected(t *testing.T) {
	svc := newTestActionService(newFakeRunRepo(), &fakeEventRepo{}, &fakeAlerts{})
	_, err := svc.Contact(context.Background(), uuid.New(), uuid.New(), "")
	if !goerrors.Is(err, errors.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound got %v", err)
	}
}

func TestAccept_MarksRunAcceptedAndAppendsTimeline(t *testing.T) {
	runRepo := newFakeRunRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestActionService(runRepo, eventRepo, &fakeAlerts{})

	candidate := types.CandidateSnapshot{ID: uuid.New(), Name: "winner"}
	run := newRankedRun(runRepo, candidate)

	snap, err := svc.Accept(context.Background(), run.ID, candidate.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if snap.Run.Status != types.RunStatusAccepted {
		t.Fatalf("expected accepted got %q", snap.Run.Status)
	}
	if snap.Run.AcceptedCandidateID == nil || *snap.Run.AcceptedCandidateID != candidate.ID {
		t.Fatalf("expected accepted candidate recorded")
	}
	if snap.Run.AcceptedAt == nil {
		t.Fatalf("expected accepted_at recorded")
	}

	kinds := eventRepo.kinds(run.ID)
	if len(kinds) != 1 || kinds[0] != types.EventAllocationAccepted {
		t.Fatalf("expected one allocation-accepted entry, got %v", kinds)
	}
}

func TestAccept_SecondAcceptRejected(t *testing.T) {
	runRepo := newFakeRunRepo()
	svc := newTestActionService(runRepo, &fakeEventRepo{}, &fakeAlerts{})

	first := types.CandidateSnapshot{ID: uuid.New(), Name: "first"}
	second := types.CandidateSnapshot{ID: uuid.New(), Name: "second"}
	run := newRankedRun(runRepo, first, second)

	if _, err := svc.Accept(context.Background(), run.ID, first.ID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.Accept(context.Background(), run.ID, second.ID)
	if !goerrors.Is(err, errors.ErrAlreadyAllocated) {
		t.Fatalf("expected ErrAlreadyAllocated got %v", err)
	}
}

func TestAccept_FailedRunRejected(t *testing.T) {
	runRepo := newFakeRunRepo()
	svc := newTestActionService(runRepo, &fakeEventRepo{}, &fakeAlerts{})

	candidate := types.CandidateSnapshot{ID: uuid.New(), Name: "x"}
	run := newRankedRun(runRepo, candidate)
	runRepo.runs[run.ID].Status = types.RunStatusFailed

	_, err := svc.Accept(context.Background(), run.ID, candidate.ID)
	if !goerrors.Is(err, errors.ErrAlreadyAllocated) {
		t.Fatalf("expected ErrAlreadyAllocated for terminal run, got %v", err)
	}
}

func TestAccept_UnrankedCandidateRejected(t *testing.T) {
	runRepo := newFakeRunRepo()
	svc := newTestActionService(runRepo, &fakeEventRepo{}, &fakeAlerts{})

	run := newRankedRun(runRepo, types.CandidateSnapshot{ID: uuid.New(), Name: "ranked"})
	_, err := svc.Accept(context.Background(), run.ID, uuid.New())
	if !goerrors.Is(err, errors.ErrCandidateNotRanked) {
		t.Fatalf("expected ErrCandidateNotRanked got %v", err)
	}
}

func TestSnapshot_ContactAfterAcceptKeepsAcceptedStatus(t *testing.T) {
	runRepo := newFakeRunRepo()
	eventRepo := &fakeEventRepo{}
	svc := newTestActionService(runRepo, eventRepo, &fakeAlerts{delivery: Delivery{Delivered: true}})

	candidate := types.CandidateSnapshot{ID: uuid.New(), Name: "x", Phone: "+15550001111"}
	run := newRankedRun(runRepo, candidate)

	if _, err := svc.Accept(context.Background(), run.ID, candidate.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Contacting after acceptance is allowed and must not override the
	// terminal presentation status.
	snap, err := svc.Contact(context.Background(), run.ID, candidate.ID, "")
	if err != nil {
		t.Fatalf("contact after accept: %v", err)
	}
	if snap.Status != types.RunStatusAccepted {
		t.Fatalf("expected accepted presentation status got %q", snap.Status)
	}
}
