package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/types"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// fakeRunRepo keeps runs in a map and applies UpdateFields / AcceptCandidate
// with the same semantics as the SQL implementation.
type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*types.AllocationRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[uuid.UUID]*types.AllocationRun)}
}

func (r *fakeRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.AllocationRun) ([]*types.AllocationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range runs {
		cp := *run
		r.runs[run.ID] = &cp
	}
	return runs, nil
}

func (r *fakeRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AllocationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *fakeRunRepo) GetLatestByDonorID(ctx context.Context, tx *gorm.DB, donorID uuid.UUID) (*types.AllocationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *types.AllocationRun
	for _, run := range r.runs {
		if run.DonorID != donorID {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeRunRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AllocationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.AllocationRun, 0, len(r.runs))
	for _, run := range r.runs {
		cp := *run
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.AllocationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, run := range r.runs {
		if run.Status != types.RunStatusQueued || run.Attempts >= maxAttempts {
			continue
		}
		run.Status = types.RunStatusRunning
		run.Attempts++
		run.LockedAt = &now
		run.HeartbeatAt = &now
		cp := *run
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return errors.ErrRunNotFound
	}
	applyRunUpdates(run, updates)
	return nil
}

func (r *fakeRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	now := time.Now()
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{"heartbeat_at": now})
}

func (r *fakeRunRepo) AcceptCandidate(ctx context.Context, tx *gorm.DB, runID, candidateID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return errors.ErrRunNotFound
	}
	if run.Terminal() {
		return errors.ErrAlreadyAllocated
	}
	cid := candidateID
	run.Status = types.RunStatusAccepted
	run.AcceptedCandidateID = &cid
	acceptedAt := at
	run.AcceptedAt = &acceptedAt
	run.UpdatedAt = at
	return nil
}

func applyRunUpdates(run *types.AllocationRun, updates map[string]interface{}) {
	for col, val := range updates {
		switch col {
		case "status":
			run.Status = val.(string)
		case "stage":
			run.Stage = val.(string)
		case "error":
			run.Error = val.(string)
		case "ranked_candidates":
			run.RankedCandidates = toJSON(val)
		case "audit":
			run.Audit = toJSON(val)
		case "last_error_at":
			run.LastErrorAt = toTimePtr(val)
		case "locked_at":
			run.LockedAt = toTimePtr(val)
		case "heartbeat_at":
			run.HeartbeatAt = toTimePtr(val)
		case "updated_at":
			if t, ok := val.(time.Time); ok {
				run.UpdatedAt = t
			}
		}
	}
}

func toJSON(val interface{}) datatypes.JSON {
	switch v := val.(type) {
	case datatypes.JSON:
		return v
	case []byte:
		return datatypes.JSON(v)
	default:
		return nil
	}
}

func toTimePtr(val interface{}) *time.Time {
	if val == nil {
		return nil
	}
	if t, ok := val.(time.Time); ok {
		return &t
	}
	return nil
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events []*types.AllocationEvent
}

func (r *fakeEventRepo) Append(ctx context.Context, tx *gorm.DB, events []*types.AllocationEvent) ([]*types.AllocationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return events, nil
}

func (r *fakeEventRepo) ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.AllocationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.AllocationEvent, 0)
	for _, evt := range r.events {
		if evt.RunID == runID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (r *fakeEventRepo) kinds(runID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for _, evt := range r.events {
		if evt.RunID == runID {
			out = append(out, evt.Kind)
		}
	}
	return out
}

type fakeSource struct {
	fetch *CandidateFetch
	err   error
}

func (s *fakeSource) FetchCandidates(ctx context.Context) (*CandidateFetch, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.fetch, nil
}

// fakeEstimator returns a fixed probability per patient id; ids in failFor
// return an error instead.
type fakeEstimator struct {
	probs   map[uuid.UUID]float64
	failFor map[uuid.UUID]error
}

func (e *fakeEstimator) EstimateSurvival(ctx context.Context, p *types.Patient) (float64, error) {
	if err, ok := e.failFor[p.ID]; ok {
		return 0, err
	}
	if prob, ok := e.probs[p.ID]; ok {
		return prob, nil
	}
	return 0.5, nil
}

type fakeAlerts struct {
	mu       sync.Mutex
	sent     []string
	delivery Delivery
}

func (a *fakeAlerts) Notify(ctx context.Context, to string, message string) Delivery {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, message)
	return a.delivery
}

type noopRunNotifier struct{}

func (noopRunNotifier) PipelineStep(uuid.UUID, string, string)                        {}
func (noopRunNotifier) RankingComplete(uuid.UUID, []types.RankedCandidate)            {}
func (noopRunNotifier) PipelineFailed(uuid.UUID, string, string)                      {}
func (noopRunNotifier) ContactAttempted(uuid.UUID, types.CandidateSnapshot, Delivery) {}
func (noopRunNotifier) AllocationAccepted(uuid.UUID, types.CandidateSnapshot, time.Time) {
}
