package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// AllocationEventRepo is append-only: timeline rows are inserted and listed,
// never updated or deleted.
type AllocationEventRepo interface {
	Append(ctx context.Context, tx *gorm.DB, events []*types.AllocationEvent) ([]*types.AllocationEvent, error)
	ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.AllocationEvent, error)
}

type allocationEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAllocationEventRepo(db *gorm.DB, baseLog *logger.Logger) AllocationEventRepo {
	return &allocationEventRepo{db: db, log: baseLog.With("repo", "AllocationEventRepo")}
}

func (r *allocationEventRepo) Append(ctx context.Context, tx *gorm.DB, events []*types.AllocationEvent) ([]*types.AllocationEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.AllocationEvent{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *allocationEventRepo) ListByRunID(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.AllocationEvent, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var events []*types.AllocationEvent
	if runID == uuid.Nil {
		return events, nil
	}
	err := transaction.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
