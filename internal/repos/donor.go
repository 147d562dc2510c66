package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/types"
)

type DonorRepo interface {
	Create(ctx context.Context, tx *gorm.DB, donors []*types.Donor) ([]*types.Donor, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Donor, error)
	GetByQRCodeID(ctx context.Context, tx *gorm.DB, qrCodeID string) (*types.Donor, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Donor, error)
}

type donorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDonorRepo(db *gorm.DB, baseLog *logger.Logger) DonorRepo {
	return &donorRepo{db: db, log: baseLog.With("repo", "DonorRepo")}
}

func (r *donorRepo) Create(ctx context.Context, tx *gorm.DB, donors []*types.Donor) ([]*types.Donor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(donors) == 0 {
		return []*types.Donor{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&donors).Error; err != nil {
		return nil, err
	}
	return donors, nil
}

func (r *donorRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Donor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var donor types.Donor
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&donor).Error
	if err != nil {
		return nil, err
	}
	if donor.ID == uuid.Nil {
		return nil, nil
	}
	return &donor, nil
}

func (r *donorRepo) GetByQRCodeID(ctx context.Context, tx *gorm.DB, qrCodeID string) (*types.Donor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	qrCodeID = strings.TrimSpace(qrCodeID)
	if qrCodeID == "" {
		return nil, nil
	}
	var donor types.Donor
	err := transaction.WithContext(ctx).
		Where("qr_code_id = ?", qrCodeID).
		Limit(1).
		Find(&donor).Error
	if err != nil {
		return nil, err
	}
	if donor.ID == uuid.Nil {
		return nil, nil
	}
	return &donor, nil
}

func (r *donorRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.Donor, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var donors []*types.Donor
	err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&donors).Error
	if err != nil {
		return nil, err
	}
	return donors, nil
}
