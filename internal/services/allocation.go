package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/repos"
	"github.com/liverlink/liverlink-backend/internal/scoring"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// AllocationService owns the automatic half of a run's life: enqueueing a
// run for a donor and driving it through fetch -> predict -> score -> rank.
// The manual half (contact/accept) lives in ActionService.
type AllocationService interface {
	EnqueueForDonor(ctx context.Context, donor *types.Donor) (*types.AllocationRun, error)
	StartWorker(ctx context.Context)
}

type AllocationConfig struct {
	ClaimInterval      time.Duration
	MaxAttempts        int
	StaleRunning       time.Duration
	PredictParallelism int
}

func (c *AllocationConfig) withDefaults() {
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = 1 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 2 * time.Minute
	}
	if c.PredictParallelism <= 0 {
		c.PredictParallelism = 8
	}
}

type allocationService struct {
	db  *gorm.DB
	log *logger.Logger
	cfg AllocationConfig

	runRepo   repos.AllocationRunRepo
	eventRepo repos.AllocationEventRepo

	source    CandidateSource
	estimator SurvivalEstimator
	notifier  RunNotifier

	tracer trace.Tracer
}

func NewAllocationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg AllocationConfig,
	runRepo repos.AllocationRunRepo,
	eventRepo repos.AllocationEventRepo,
	source CandidateSource,
	estimator SurvivalEstimator,
	notifier RunNotifier,
) AllocationService {
	cfg.withDefaults()
	return &allocationService{
		db:        db,
		log:       baseLog.With("service", "AllocationService"),
		cfg:       cfg,
		runRepo:   runRepo,
		eventRepo: eventRepo,
		source:    source,
		estimator: estimator,
		notifier:  notifier,
		tracer:    otel.Tracer("allocation"),
	}
}

func (s *allocationService) EnqueueForDonor(ctx context.Context, donor *types.Donor) (*types.AllocationRun, error) {
	if donor == nil || donor.ID == uuid.Nil {
		return nil, errors.ErrInvalidArgument
	}

	snapshot, err := json.Marshal(donor)
	if err != nil {
		return nil, fmt.Errorf("marshal donor snapshot: %w", err)
	}

	now := time.Now()
	run := &types.AllocationRun{
		ID:               uuid.New(),
		DonorID:          donor.ID,
		DonorSnapshot:    datatypes.JSON(snapshot),
		Status:           types.RunStatusQueued,
		Stage:            types.RunStageFetch,
		RankedCandidates: datatypes.JSON([]byte(`[]`)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.runRepo.Create(ctx, tx, []*types.AllocationRun{run}); err != nil {
			return fmt.Errorf("create allocation run: %w", err)
		}
		if _, err := s.eventRepo.Append(ctx, tx, []*types.AllocationEvent{{
			ID:        uuid.New(),
			RunID:     run.ID,
			Kind:      types.EventPipelineStep,
			Detail:    fmt.Sprintf("run queued for donor %s (%s)", donor.QRCodeID, donor.Organ),
			CreatedAt: now,
		}}); err != nil {
			return fmt.Errorf("append queued event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Allocation run queued", "run_id", run.ID, "donor_id", donor.ID, "qr_code_id", donor.QRCodeID)
	return run, nil
}

func (s *allocationService) StartWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.ClaimInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run, err := s.runRepo.ClaimNextRunnable(ctx, nil, s.cfg.MaxAttempts, s.cfg.StaleRunning)
				if err != nil {
					s.log.Warn("ClaimNextRunnable failed", "error", err)
					continue
				}
				if run == nil {
					continue
				}
				s.processRun(ctx, run)
			}
		}
	}()
}

func (s *allocationService) processRun(ctx context.Context, run *types.AllocationRun) {
	runID := run.ID
	log := s.log.With("run_id", runID)

	ctx, span := s.tracer.Start(ctx, "allocation.process_run",
		trace.WithAttributes(attribute.String("run_id", runID.String())))
	defer span.End()

	fail := func(stage string, err error) {
		now := time.Now()
		if uErr := s.runRepo.UpdateFields(ctx, nil, runID, map[string]interface{}{
			"status":        types.RunStatusFailed,
			"stage":         stage,
			"error":         err.Error(),
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		}); uErr != nil {
			log.Error("Failed to mark run failed", "stage", stage, "error", uErr)
		}
		s.appendEvent(ctx, runID, types.EventPipelineFailed, fmt.Sprintf("pipeline failed at %s: %v", stage, err), nil)
		s.notifier.PipelineFailed(runID, stage, err.Error())
		log.Warn("Allocation run failed", "stage", stage, "error", err)
	}

	// step announces a transition before the stage executes, per the
	// progress contract observers rely on.
	step := func(stage string, detail string) {
		now := time.Now()
		if uErr := s.runRepo.UpdateFields(ctx, nil, runID, map[string]interface{}{
			"stage":        stage,
			"heartbeat_at": now,
			"updated_at":   now,
		}); uErr != nil {
			log.Warn("Failed to update run stage", "stage", stage, "error", uErr)
		}
		s.appendEvent(ctx, runID, types.EventPipelineStep, detail, nil)
		s.notifier.PipelineStep(runID, stage, detail)
	}

	// 1) FETCH
	step(types.RunStageFetch, "fetching waitlist candidates")
	fetch, err := s.source.FetchCandidates(ctx)
	if err != nil {
		fail(types.RunStageFetch, err)
		return
	}
	excluded := make([]types.Exclusion, 0, len(fetch.Excluded))
	for _, ex := range fetch.Excluded {
		excluded = append(excluded, ex)
		s.appendEvent(ctx, runID, types.EventCandidateExcluded,
			fmt.Sprintf("candidate %s excluded at %s: %s", ex.CandidateID, ex.Stage, ex.Reason), ex)
	}
	if len(fetch.Candidates) == 0 {
		fail(types.RunStageFetch, errors.ErrTotalFetchFailure)
		return
	}
	log.Info("Fetched waitlist candidates", "usable", len(fetch.Candidates), "excluded", len(excluded))

	// 2) PREDICT — candidates are independent, so estimate in parallel.
	step(types.RunStagePredict, fmt.Sprintf("predicting survival for %d candidates", len(fetch.Candidates)))
	probs := make([]float64, len(fetch.Candidates))
	failedPredict := make([]bool, len(fetch.Candidates))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PredictParallelism)
	for i, p := range fetch.Candidates {
		g.Go(func() error {
			prob, err := s.estimator.EstimateSurvival(gctx, p)
			if err != nil {
				ex := types.Exclusion{
					CandidateID: p.ID.String(),
					Name:        p.Name,
					Stage:       types.RunStagePredict,
					Reason:      err.Error(),
				}
				mu.Lock()
				failedPredict[i] = true
				excluded = append(excluded, ex)
				mu.Unlock()
				s.appendEvent(ctx, runID, types.EventCandidateExcluded,
					fmt.Sprintf("candidate %s excluded at %s: %v", p.ID, types.RunStagePredict, err), ex)
				return nil // per-candidate failure never aborts the run
			}
			probs[i] = prob
			return nil
		})
	}
	_ = g.Wait()

	survivors := make([]*types.Patient, 0, len(fetch.Candidates))
	survivorProbs := make([]float64, 0, len(fetch.Candidates))
	for i, p := range fetch.Candidates {
		if failedPredict[i] {
			continue
		}
		survivors = append(survivors, p)
		survivorProbs = append(survivorProbs, probs[i])
	}
	if len(survivors) == 0 {
		fail(types.RunStagePredict, fmt.Errorf("all %d candidates excluded during prediction", len(fetch.Candidates)))
		return
	}

	// 3) SCORE
	step(types.RunStageScore, fmt.Sprintf("scoring %d candidates", len(survivors)))
	ranked := make([]types.RankedCandidate, 0, len(survivors))
	for i, p := range survivors {
		snap := types.SnapshotFromPatient(p)
		snap.SurvivalProb = survivorProbs[i]
		ranked = append(ranked, types.RankedCandidate{
			Candidate: snap,
			Score: scoring.Score(scoring.Input{
				UrgencyIndex:        p.UrgencyIndex,
				SurvivalProbability: survivorProbs[i],
				HLAMatchPercent:     p.HLAMatch,
				AntibodyLevel:       p.AntibodyLevel,
				DistanceKM:          p.DistanceKM,
				ICUAvailable:        p.ICUAvailable,
				ORAvailable:         p.ORAvailable,
				HCC:                 p.HCC,
				Diabetes:            p.Diabetes,
				RenalFailure:        p.RenalFailure,
				VentilatorDependent: p.VentilatorDependent,
			}),
		})
	}

	// 4) RANK — descending composite, candidate id breaks ties so the
	// order is reproducible.
	step(types.RunStageRank, "ranking candidates")
	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score.Composite != ranked[b].Score.Composite {
			return ranked[a].Score.Composite > ranked[b].Score.Composite
		}
		return ranked[a].Candidate.ID.String() < ranked[b].Candidate.ID.String()
	})

	top := ranked
	if len(top) > types.MaxRankedCandidates {
		top = top[:types.MaxRankedCandidates]
	}

	topJSON, err := json.Marshal(top)
	if err != nil {
		fail(types.RunStageRank, fmt.Errorf("marshal ranked candidates: %w", err))
		return
	}
	auditJSON, err := json.Marshal(types.RunAudit{FullRanking: ranked, Excluded: excluded})
	if err != nil {
		fail(types.RunStageRank, fmt.Errorf("marshal run audit: %w", err))
		return
	}

	now := time.Now()
	if err := s.runRepo.UpdateFields(ctx, nil, runID, map[string]interface{}{
		"status":            types.RunStatusRanked,
		"stage":             types.RunStageDone,
		"ranked_candidates": datatypes.JSON(topJSON),
		"audit":             datatypes.JSON(auditJSON),
		"error":             "",
		"locked_at":         nil,
		"updated_at":        now,
	}); err != nil {
		fail(types.RunStageRank, fmt.Errorf("persist ranked run: %w", err))
		return
	}

	s.appendEvent(ctx, runID, types.EventRankingComplete,
		fmt.Sprintf("ranked %d candidates, exposing top %d", len(ranked), len(top)), nil)
	s.notifier.RankingComplete(runID, top)
	log.Info("Allocation run ranked", "candidates", len(ranked), "exposed", len(top), "excluded", len(excluded))
}

func (s *allocationService) appendEvent(ctx context.Context, runID uuid.UUID, kind string, detail string, payload any) {
	evt := &types.AllocationEvent{
		ID:        uuid.New(),
		RunID:     runID,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = datatypes.JSON(raw)
		}
	}
	if _, err := s.eventRepo.Append(ctx, nil, []*types.AllocationEvent{evt}); err != nil {
		s.log.Error("Failed to append timeline event", "run_id", runID, "kind", kind, "error", err)
	}
}
