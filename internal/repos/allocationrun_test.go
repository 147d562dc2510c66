package repos

import (
	"context"
	goerrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/types"
)

// newTestDB opens an in-memory sqlite database capped at one connection so
// concurrent repo calls serialize the way a single postgres row lock would.
// The schema is created by hand because the production DDL uses postgres
// defaults sqlite cannot parse.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ddl := []string{
		`CREATE TABLE allocation_run (
			id TEXT PRIMARY KEY,
			donor_id TEXT NOT NULL,
			donor_snapshot TEXT,
			status TEXT NOT NULL,
			stage TEXT NOT NULL,
			ranked_candidates TEXT,
			audit TEXT,
			accepted_candidate_id TEXT,
			accepted_at DATETIME,
			error TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error_at DATETIME,
			locked_at DATETIME,
			heartbeat_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE allocation_event (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT,
			payload TEXT,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func testRepoLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func insertRankedRun(t *testing.T, db *gorm.DB) *types.AllocationRun {
	t.Helper()
	now := time.Now()
	run := &types.AllocationRun{
		ID:               uuid.New(),
		DonorID:          uuid.New(),
		Status:           types.RunStatusRanked,
		Stage:            types.RunStageDone,
		RankedCandidates: []byte(`[]`),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := db.Create(run).Error; err != nil {
		t.Fatalf("insert run: %v", err)
	}
	return run
}

func TestAcceptCandidate_ExactlyOneConcurrentWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRunRepo(db, testRepoLogger())
	run := insertRankedRun(t, db)

	const racers = 16
	results := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = repo.AcceptCandidate(context.Background(), nil, run.ID, uuid.New(), time.Now())
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case goerrors.Is(err, errors.ErrAlreadyAllocated):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	if losses != racers-1 {
		t.Fatalf("expected %d losers, got %d", racers-1, losses)
	}

	stored, err := repo.GetByID(context.Background(), nil, run.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != types.RunStatusAccepted {
		t.Fatalf("expected accepted got %q", stored.Status)
	}
	if stored.AcceptedCandidateID == nil || stored.AcceptedAt == nil {
		t.Fatalf("expected winner and timestamp recorded")
	}
}

func TestAcceptCandidate_UnknownRun(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRunRepo(db, testRepoLogger())

	err := repo.AcceptCandidate(context.Background(), nil, uuid.New(), uuid.New(), time.Now())
	if !goerrors.Is(err, errors.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound got %v", err)
	}
}

func TestAcceptCandidate_FailedRunStaysFailed(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRunRepo(db, testRepoLogger())
	run := insertRankedRun(t, db)

	if err := repo.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
		"status": types.RunStatusFailed,
	}); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	err := repo.AcceptCandidate(context.Background(), nil, run.ID, uuid.New(), time.Now())
	if !goerrors.Is(err, errors.ErrAlreadyAllocated) {
		t.Fatalf("expected ErrAlreadyAllocated got %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), nil, run.ID)
	if stored.Status != types.RunStatusFailed {
		t.Fatalf("accept overwrote a failed run: %q", stored.Status)
	}
}

func TestAcceptCandidate_NilIDsRejected(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRunRepo(db, testRepoLogger())

	if err := repo.AcceptCandidate(context.Background(), nil, uuid.Nil, uuid.New(), time.Now()); !goerrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument got %v", err)
	}
	if err := repo.AcceptCandidate(context.Background(), nil, uuid.New(), uuid.Nil, time.Now()); !goerrors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument got %v", err)
	}
}

func TestUpdateFields_SetsUpdatedAt(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationRunRepo(db, testRepoLogger())
	run := insertRankedRun(t, db)

	before := run.UpdatedAt
	time.Sleep(5 * time.Millisecond)
	if err := repo.UpdateFields(context.Background(), nil, run.ID, map[string]interface{}{
		"stage": types.RunStageRank,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), nil, run.ID)
	if stored.Stage != types.RunStageRank {
		t.Fatalf("expected stage updated, got %q", stored.Stage)
	}
	if !stored.UpdatedAt.After(before) {
		t.Fatalf("expected updated_at to advance")
	}
}

func TestEventRepo_ListIsOrderedAndScoped(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllocationEventRepo(db, testRepoLogger())

	runA := uuid.New()
	runB := uuid.New()
	base := time.Now()
	events := []*types.AllocationEvent{
		{ID: uuid.New(), RunID: runA, Kind: types.EventRankingComplete, CreatedAt: base.Add(2 * time.Second)},
		{ID: uuid.New(), RunID: runA, Kind: types.EventPipelineStep, CreatedAt: base},
		{ID: uuid.New(), RunID: runB, Kind: types.EventPipelineStep, CreatedAt: base.Add(time.Second)},
	}
	if _, err := repo.Append(context.Background(), nil, events); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := repo.ListByRunID(context.Background(), nil, runA)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events for run A, got %d", len(got))
	}
	if got[0].Kind != types.EventPipelineStep || got[1].Kind != types.EventRankingComplete {
		t.Fatalf("expected chronological order, got %s then %s", got[0].Kind, got[1].Kind)
	}
}
