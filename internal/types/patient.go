package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Patient is one waitlisted recipient record. The ranking pipeline never
// reads these rows directly; it goes through the candidate source adapter,
// which validates and snapshots them.
type Patient struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	BloodType string    `gorm:"column:blood_type;not null" json:"blood_type"`
	Phone     string    `gorm:"column:phone" json:"phone"` // care-team contact, E.164

	// Composite-score markers.
	UrgencyIndex  int     `gorm:"column:urgency_index;not null" json:"urgency_index"` // MELD
	HLAMatch      int     `gorm:"column:hla_match;not null" json:"hla_match"`         // percent
	AntibodyLevel int     `gorm:"column:antibody_level;not null" json:"antibody_level"`
	DistanceKM    float64 `gorm:"column:distance_km;not null" json:"distance_km"`
	ICUAvailable  bool    `gorm:"column:icu_available;not null;default:false" json:"icu_available"`
	ORAvailable   bool    `gorm:"column:or_available;not null;default:false" json:"or_available"`

	// Risk flags.
	HCC                 bool `gorm:"column:hcc;not null;default:false" json:"hcc"`
	Diabetes            bool `gorm:"column:diabetes;not null;default:false" json:"diabetes"`
	RenalFailure        bool `gorm:"column:renal_failure;not null;default:false" json:"renal_failure"`
	VentilatorDependent bool `gorm:"column:ventilator_dependent;not null;default:false" json:"ventilator_dependent"`

	// Survival-estimator features.
	Age                 int     `gorm:"column:age;not null" json:"age"`
	Comorbidities       int     `gorm:"column:comorbidities;not null;default:0" json:"comorbidities"`
	Bilirubin           float64 `gorm:"column:bilirubin" json:"bilirubin"`
	INR                 float64 `gorm:"column:inr" json:"inr"`
	Creatinine          float64 `gorm:"column:creatinine" json:"creatinine"`
	AscitesGrade        int     `gorm:"column:ascites_grade" json:"ascites_grade"`
	EncephalopathyGrade int     `gorm:"column:encephalopathy_grade" json:"encephalopathy_grade"`
	HospitalizedLast7d  bool    `gorm:"column:hospitalized_last_7d;not null;default:false" json:"hospitalized_last_7d"`

	WaitlistDays int `gorm:"column:waitlist_days;not null;default:0" json:"waitlist_days"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Patient) TableName() string { return "patient" }
