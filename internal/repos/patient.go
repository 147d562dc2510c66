package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/types"
)

type PatientRepo interface {
	Create(ctx context.Context, tx *gorm.DB, patients []*types.Patient) ([]*types.Patient, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Patient, error)
	ListWaitlist(ctx context.Context, tx *gorm.DB) ([]*types.Patient, error)
}

type patientRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPatientRepo(db *gorm.DB, baseLog *logger.Logger) PatientRepo {
	return &patientRepo{db: db, log: baseLog.With("repo", "PatientRepo")}
}

func (r *patientRepo) Create(ctx context.Context, tx *gorm.DB, patients []*types.Patient) ([]*types.Patient, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(patients) == 0 {
		return []*types.Patient{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&patients).Error; err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *patientRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Patient, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var patient types.Patient
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&patient).Error
	if err != nil {
		return nil, err
	}
	if patient.ID == uuid.Nil {
		return nil, nil
	}
	return &patient, nil
}

func (r *patientRepo) ListWaitlist(ctx context.Context, tx *gorm.DB) ([]*types.Patient, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var patients []*types.Patient
	err := transaction.WithContext(ctx).
		Order("urgency_index DESC, created_at ASC").
		Find(&patients).Error
	if err != nil {
		return nil, err
	}
	return patients, nil
}
