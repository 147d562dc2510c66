package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/repos"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// CandidateFetch is the outcome of one waitlist fetch: the usable records
// plus every record that was rejected at the boundary, with its reason.
type CandidateFetch struct {
	Candidates []*types.Patient
	Excluded   []types.Exclusion
}

// CandidateSource is the boundary adapter in front of the waitlist. A
// returned error means total failure; malformed individual records are
// reported through Excluded so the run can proceed with the rest.
type CandidateSource interface {
	FetchCandidates(ctx context.Context) (*CandidateFetch, error)
}

type waitlistSource struct {
	log         *logger.Logger
	patientRepo repos.PatientRepo
}

func NewWaitlistSource(baseLog *logger.Logger, patientRepo repos.PatientRepo) CandidateSource {
	return &waitlistSource{
		log:         baseLog.With("service", "WaitlistSource"),
		patientRepo: patientRepo,
	}
}

func (s *waitlistSource) FetchCandidates(ctx context.Context) (*CandidateFetch, error) {
	patients, err := s.patientRepo.ListWaitlist(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list waitlist: %v", errors.ErrTotalFetchFailure, err)
	}

	fetch := &CandidateFetch{
		Candidates: make([]*types.Patient, 0, len(patients)),
		Excluded:   []types.Exclusion{},
	}
	for _, p := range patients {
		if p == nil {
			continue
		}
		if reason := validateCandidate(p); reason != "" {
			s.log.Warn("Rejecting malformed waitlist record", "patient_id", p.ID, "reason", reason)
			fetch.Excluded = append(fetch.Excluded, types.Exclusion{
				CandidateID: p.ID.String(),
				Name:        p.Name,
				Stage:       types.RunStageFetch,
				Reason:      reason,
			})
			continue
		}
		fetch.Candidates = append(fetch.Candidates, p)
	}
	return fetch, nil
}

// validateCandidate enforces the candidate schema before anything reaches
// the scoring engine. Returns an empty string for a valid record.
func validateCandidate(p *types.Patient) string {
	switch {
	case p.ID == uuid.Nil:
		return "missing id"
	case strings.TrimSpace(p.Name) == "":
		return "missing name"
	case strings.TrimSpace(p.BloodType) == "":
		return "missing blood type"
	case p.UrgencyIndex < 0:
		return fmt.Sprintf("urgency index out of range: %d", p.UrgencyIndex)
	case p.HLAMatch < 0 || p.HLAMatch > 100:
		return fmt.Sprintf("hla match out of range: %d", p.HLAMatch)
	case p.AntibodyLevel < 0 || p.AntibodyLevel > 100:
		return fmt.Sprintf("antibody level out of range: %d", p.AntibodyLevel)
	case p.DistanceKM < 0:
		return fmt.Sprintf("negative distance: %v", p.DistanceKM)
	case p.Age < 0:
		return fmt.Sprintf("negative age: %d", p.Age)
	}
	return ""
}
