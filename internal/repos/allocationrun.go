package repos

import (
	goerrors "errors"
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/types"
)

type AllocationRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.AllocationRun) ([]*types.AllocationRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AllocationRun, error)
	GetLatestByDonorID(ctx context.Context, tx *gorm.DB, donorID uuid.UUID) (*types.AllocationRun, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AllocationRun, error)

	// ClaimNextRunnable picks up the next run the worker should process:
	// status=queued, or status=running with a stale heartbeat (crash
	// recovery). The row is claimed under FOR UPDATE SKIP LOCKED so
	// concurrent workers never double-claim.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.AllocationRun, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error

	// AcceptCandidate is the single atomic compare-and-set that finalizes a
	// run: status becomes accepted only if the row was not already terminal.
	// Exactly one concurrent caller can win; every other caller gets
	// errors.ErrAlreadyAllocated. Correct across independent service
	// instances because the guard is a conditional UPDATE, not an
	// application lock.
	AcceptCandidate(ctx context.Context, tx *gorm.DB, runID, candidateID uuid.UUID, at time.Time) error
}

type allocationRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAllocationRunRepo(db *gorm.DB, baseLog *logger.Logger) AllocationRunRepo {
	return &allocationRunRepo{db: db, log: baseLog.With("repo", "AllocationRunRepo")}
}

func (r *allocationRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.AllocationRun) ([]*types.AllocationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.AllocationRun{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *allocationRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.AllocationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.AllocationRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *allocationRunRepo) GetLatestByDonorID(ctx context.Context, tx *gorm.DB, donorID uuid.UUID) (*types.AllocationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if donorID == uuid.Nil {
		return nil, nil
	}
	var run types.AllocationRun
	err := transaction.WithContext(ctx).
		Where("donor_id = ?", donorID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *allocationRunRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.AllocationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var runs []*types.AllocationRun
	err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *allocationRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.AllocationRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.AllocationRun

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var run types.AllocationRun

		q := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, types.RunStatusQueued, types.RunStatusRunning, maxAttempts, staleCutoff).
			Order("created_at ASC")

		qErr := q.First(&run).Error
		if goerrors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&types.AllocationRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]interface{}{
				"status":       types.RunStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		claimed = &run
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *allocationRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.AllocationRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *allocationRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.AllocationRun{}).
		Where("id = ? AND status = ?", id, types.RunStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *allocationRunRepo) AcceptCandidate(ctx context.Context, tx *gorm.DB, runID, candidateID uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if runID == uuid.Nil || candidateID == uuid.Nil {
		return errors.ErrInvalidArgument
	}

	res := transaction.WithContext(ctx).
		Model(&types.AllocationRun{}).
		Where("id = ? AND status NOT IN ?", runID, []string{types.RunStatusAccepted, types.RunStatusFailed}).
		Updates(map[string]interface{}{
			"status":                types.RunStatusAccepted,
			"accepted_candidate_id": candidateID,
			"accepted_at":           at,
			"updated_at":            at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Zero rows: either the run does not exist or someone already won the
	// race. Reload to tell them apart.
	run, err := r.GetByID(ctx, transaction, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return errors.ErrRunNotFound
	}
	return errors.ErrAlreadyAllocated
}
