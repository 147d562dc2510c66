package services

import (
	"context"
	"fmt"

	"github.com/liverlink/liverlink-backend/internal/clients/predictor"
	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// SurvivalEstimator is the boundary adapter in front of the survival model.
// A failed estimate excludes that candidate from the run; it is never
// substituted with a neutral score.
type SurvivalEstimator interface {
	EstimateSurvival(ctx context.Context, p *types.Patient) (float64, error)
}

type predictorEstimator struct {
	log    *logger.Logger
	client predictor.Client
}

func NewPredictorEstimator(baseLog *logger.Logger, client predictor.Client) SurvivalEstimator {
	return &predictorEstimator{
		log:    baseLog.With("service", "PredictorEstimator"),
		client: client,
	}
}

func (e *predictorEstimator) EstimateSurvival(ctx context.Context, p *types.Patient) (float64, error) {
	prob, err := e.client.PredictSurvival(ctx, featuresFromPatient(p))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrPredictionUnavailable, err)
	}
	return prob, nil
}

func featuresFromPatient(p *types.Patient) predictor.Features {
	hospitalized := 0.0
	if p.HospitalizedLast7d {
		hospitalized = 1.0
	}
	return predictor.Features{
		MELD:                float64(p.UrgencyIndex),
		Age:                 float64(p.Age),
		Comorbidities:       float64(p.Comorbidities),
		Bilirubin:           p.Bilirubin,
		INR:                 p.INR,
		Creatinine:          p.Creatinine,
		AscitesGrade:        float64(p.AscitesGrade),
		EncephalopathyGrade: float64(p.EncephalopathyGrade),
		HospitalizedLast7d:  hospitalized,
	}
}
