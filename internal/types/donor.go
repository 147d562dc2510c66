package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Donor is procurement metadata for one donor organ. Immutable once a run
// has snapshotted it.
type Donor struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QRCodeID            string         `gorm:"column:qr_code_id;not null;uniqueIndex" json:"qr_code_id"`
	Organ               string         `gorm:"column:organ;not null" json:"organ"`
	BloodType           string         `gorm:"column:blood_type;not null" json:"blood_type"`
	Age                 int            `gorm:"column:age" json:"age"`
	CauseOfDeath        string         `gorm:"column:cause_of_death" json:"cause_of_death"`
	CrossmatchScore     int            `gorm:"column:crossmatch_score" json:"crossmatch_score"`
	ProcurementHospital string         `gorm:"column:procurement_hospital" json:"procurement_hospital"`
	ArrivalETAMin       int            `gorm:"column:arrival_eta_min" json:"arrival_eta_min"`
	CreatedAt           time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Donor) TableName() string { return "donor" }
