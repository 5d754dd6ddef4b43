package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/repository"
	"github.com/qs3c/deal_anal_server/internal/service"
	"github.com/qs3c/deal_anal_server/internal/testutil"
)

type cronFixture struct {
	svc      *Service
	db       *gorm.DB
	jobRepo  *repository.JobRepository
	dealRepo *repository.DealRepository
	userRepo *repository.UserRepository
}

func setupCronService(t *testing.T) *cronFixture {
	db := testutil.SetupTestDB(t)

	userRepo := repository.NewUserRepository(db)
	dealRepo := repository.NewDealRepository(db)
	jobRepo := repository.NewJobRepository(db)

	cfg := &config.Config{
		Quota:  config.QuotaConfig{DailyQuota: 10},
		Upload: config.UploadConfig{TempDir: t.TempDir(), ExpireHours: 1},
	}

	quotaService := service.NewQuotaService(userRepo, cfg)
	uploadService := service.NewUploadService(nil, cfg)

	return &cronFixture{
		svc:      NewService(quotaService, uploadService, jobRepo, dealRepo),
		db:       db,
		jobRepo:  jobRepo,
		dealRepo: dealRepo,
		userRepo: userRepo,
	}
}

func TestSweepStuckJobs_MarksOldProcessingJobsFailed(t *testing.T) {
	f := setupCronService(t)

	user := testutil.TestUser(t, f.db)
	deal := testutil.TestDeal(t, f.db, user.ID, testutil.WithDealStatus(model.DealStatusAnalyzing))
	job := testutil.TestJob(t, f.db, user.ID, deal.ID, model.JobStatusProcessing)

	stale := time.Now().Add(-3 * time.Hour)
	require.NoError(t, f.jobRepo.UpdateFields(job.ID, map[string]interface{}{"started_at": &stale}))

	swept := f.svc.SweepStuckJobs()
	assert.Equal(t, 1, swept)

	updated, err := f.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, updated.Status)
	assert.NotEmpty(t, updated.ErrorMessage)
	assert.NotNil(t, updated.CompletedAt)

	updatedDeal, err := f.dealRepo.GetByID(deal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DealStatusFailed, updatedDeal.Status)
}

func TestSweepStuckJobs_LeavesRecentJobsAlone(t *testing.T) {
	f := setupCronService(t)

	user := testutil.TestUser(t, f.db)
	deal := testutil.TestDeal(t, f.db, user.ID, testutil.WithDealStatus(model.DealStatusAnalyzing))
	job := testutil.TestJob(t, f.db, user.ID, deal.ID, model.JobStatusProcessing)

	swept := f.svc.SweepStuckJobs()
	assert.Equal(t, 0, swept)

	updated, err := f.jobRepo.GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, updated.Status)
}

func TestSweepStuckJobs_IgnoresTerminalJobs(t *testing.T) {
	f := setupCronService(t)

	user := testutil.TestUser(t, f.db)
	deal := testutil.TestDeal(t, f.db, user.ID, testutil.WithDealStatus(model.DealStatusCompleted))
	job := testutil.TestJob(t, f.db, user.ID, deal.ID, model.JobStatusCompleted)

	stale := time.Now().Add(-3 * time.Hour)
	require.NoError(t, f.jobRepo.UpdateFields(job.ID, map[string]interface{}{"started_at": &stale}))

	swept := f.svc.SweepStuckJobs()
	assert.Equal(t, 0, swept)
}

func TestRunNow_ResetsQuotas(t *testing.T) {
	f := setupCronService(t)

	user := testutil.TestUser(t, f.db, testutil.WithQuotaUsed(5))

	require.NoError(t, f.svc.RunNow())

	updated, err := f.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.QuotaUsedToday)
}
