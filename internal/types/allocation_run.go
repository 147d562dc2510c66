package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/liverlink/liverlink-backend/internal/scoring"
)

// Run status values. Queued and Running belong to the automatic pipeline;
// Ranked, Accepted and Failed are the run's own lifecycle. Accepted and
// Failed are terminal. StatusContacted never appears in the status column —
// it is derived for API snapshots from the timeline (contact never mutates
// persisted status).
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusRanked    = "ranked"
	RunStatusContacted = "contacted"
	RunStatusAccepted  = "accepted"
	RunStatusFailed    = "failed"
)

// Pipeline stages, in execution order.
const (
	RunStageFetch   = "fetch"
	RunStagePredict = "predict"
	RunStageScore   = "score"
	RunStageRank    = "rank"
	RunStageDone    = "done"
)

// MaxRankedCandidates is the number of candidates exposed for manual action.
const MaxRankedCandidates = 5

// CandidateSnapshot is the immutable copy of a waitlist record taken at
// ranking time. It is stored inside the run's ranked-candidates JSON and is
// never refreshed from the patient table.
type CandidateSnapshot struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BloodType string    `json:"blood_type"`
	Phone     string    `json:"phone,omitempty"`

	UrgencyIndex  int     `json:"urgency_index"`
	HLAMatch      int     `json:"hla_match"`
	AntibodyLevel int     `json:"antibody_level"`
	DistanceKM    float64 `json:"distance_km"`
	ICUAvailable  bool    `json:"icu_available"`
	ORAvailable   bool    `json:"or_available"`

	HCC                 bool `json:"hcc"`
	Diabetes            bool `json:"diabetes"`
	RenalFailure        bool `json:"renal_failure"`
	VentilatorDependent bool `json:"ventilator_dependent"`

	Age          int     `json:"age"`
	WaitlistDays int     `json:"waitlist_days"`
	SurvivalProb float64 `json:"survival_prob"`
}

// SnapshotFromPatient copies the fields that matter for ranking and manual
// action. The survival probability is filled in after prediction.
func SnapshotFromPatient(p *Patient) CandidateSnapshot {
	return CandidateSnapshot{
		ID:                  p.ID,
		Name:                p.Name,
		BloodType:           p.BloodType,
		Phone:               p.Phone,
		UrgencyIndex:        p.UrgencyIndex,
		HLAMatch:            p.HLAMatch,
		AntibodyLevel:       p.AntibodyLevel,
		DistanceKM:          p.DistanceKM,
		ICUAvailable:        p.ICUAvailable,
		ORAvailable:         p.ORAvailable,
		HCC:                 p.HCC,
		Diabetes:            p.Diabetes,
		RenalFailure:        p.RenalFailure,
		VentilatorDependent: p.VentilatorDependent,
		Age:                 p.Age,
		WaitlistDays:        p.WaitlistDays,
	}
}

// RankedCandidate pairs a candidate snapshot with its score breakdown.
type RankedCandidate struct {
	Candidate CandidateSnapshot `json:"candidate"`
	Score     scoring.Breakdown `json:"score_breakdown"`
}

// Exclusion records why a candidate was dropped from a run instead of being
// silently lost. Kept in the run's audit document.
type Exclusion struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name,omitempty"`
	Stage       string `json:"stage"`
	Reason      string `json:"reason"`
}

// RunAudit retains the full ranked set and all exclusions. Only the top-N
// ranked candidates are exposed for manual action; this document exists for
// after-the-fact review.
type RunAudit struct {
	FullRanking []RankedCandidate `json:"full_ranking"`
	Excluded    []Exclusion       `json:"excluded"`
}

// AllocationRun is one donor-triggered ranking-and-allocation episode. Rows
// are never deleted; later runs for the same waitlist supersede earlier ones.
type AllocationRun struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DonorID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"donor_id"`
	DonorSnapshot datatypes.JSON `gorm:"type:jsonb;column:donor_snapshot" json:"donor"`

	Status string `gorm:"column:status;not null;index" json:"status"`
	Stage  string `gorm:"column:stage;not null" json:"stage"`

	RankedCandidates datatypes.JSON `gorm:"type:jsonb;column:ranked_candidates" json:"ranked_candidates"`
	Audit            datatypes.JSON `gorm:"type:jsonb;column:audit" json:"-"`

	AcceptedCandidateID *uuid.UUID `gorm:"type:uuid;column:accepted_candidate_id" json:"accepted_candidate_id,omitempty"`
	AcceptedAt          *time.Time `gorm:"column:accepted_at" json:"accepted_at,omitempty"`

	Error       string     `gorm:"column:error" json:"error,omitempty"`
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"-"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"-"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (AllocationRun) TableName() string { return "allocation_run" }

// Terminal reports whether no further status transition is permitted.
func (r *AllocationRun) Terminal() bool {
	return r.Status == RunStatusAccepted || r.Status == RunStatusFailed
}

// RankedList decodes the exposed top-N ranked candidates. An empty column
// decodes to an empty list.
func (r *AllocationRun) RankedList() ([]RankedCandidate, error) {
	if len(r.RankedCandidates) == 0 {
		return []RankedCandidate{}, nil
	}
	var out []RankedCandidate
	if err := json.Unmarshal(r.RankedCandidates, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RankedCandidate returns the exposed entry for the given candidate, or
// false when the candidate is not in the top-N list.
func (r *AllocationRun) RankedCandidate(candidateID uuid.UUID) (RankedCandidate, bool, error) {
	list, err := r.RankedList()
	if err != nil {
		return RankedCandidate{}, false, err
	}
	for _, rc := range list {
		if rc.Candidate.ID == candidateID {
			return rc, true, nil
		}
	}
	return RankedCandidate{}, false, nil
}
