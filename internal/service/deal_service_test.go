package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/deal_anal_server/config"
	"github.com/qs3c/deal_anal_server/internal/model"
	"github.com/qs3c/deal_anal_server/internal/model/dto"
	"github.com/qs3c/deal_anal_server/internal/pkg/queue"
	"github.com/qs3c/deal_anal_server/internal/repository"
	"github.com/qs3c/deal_anal_server/internal/testutil"
)

func setupDealService(t *testing.T) (*DealService, *gorm.DB, *queue.Queue, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewQueue(client, "test_analysis_queue")

	cfg := &config.Config{
		Quota: config.QuotaConfig{DailyQuota: 5},
	}
	userRepo := repository.NewUserRepository(db)
	dealRepo := repository.NewDealRepository(db)
	jobRepo := repository.NewJobRepository(db)
	quotaService := NewQuotaService(userRepo, cfg)
	svc := NewDealService(dealRepo, jobRepo, quotaService, q, cfg)

	cleanup := func() {
		client.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	}
	return svc, db, q, cleanup
}

func TestDealService_CreateAndGet(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)

	resp, err := svc.Create(user.ID, &dto.CreateDealRequest{
		Title:        "收购 Acme Robotics",
		DocumentKey:  "documents/1/deck.pdf",
		DocumentName: "deck.pdf",
	})
	require.NoError(t, err)
	assert.NotZero(t, resp.DealID)

	detail, err := svc.GetByID(user.ID, resp.DealID)
	require.NoError(t, err)
	assert.Equal(t, "收购 Acme Robotics", detail.Title)
	assert.Equal(t, model.DealStatusDraft, detail.Status)
}

func TestDealService_GetByID_Permission(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	owner := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, owner.ID)

	_, err := svc.GetByID(other.ID, deal.ID)
	assert.ErrorIs(t, err, ErrDealPermission)

	_, err = svc.GetByID(owner.ID, 99999)
	assert.ErrorIs(t, err, ErrDealNotFound)
}

func TestDealService_Analyze(t *testing.T) {
	svc, db, q, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, user.ID, testutil.WithDealStatus(model.DealStatusDraft))

	resp, err := svc.Analyze(context.Background(), user.ID, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, deal.ID, resp.DealID)
	assert.NotZero(t, resp.JobID)

	// 任务入队
	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	// 交易转入 pending，配额扣一次
	var got model.Deal
	require.NoError(t, db.First(&got, deal.ID).Error)
	assert.Equal(t, model.DealStatusPending, got.Status)

	var gotUser model.User
	require.NoError(t, db.First(&gotUser, user.ID).Error)
	assert.Equal(t, 1, gotUser.QuotaUsedToday)
}

func TestDealService_Analyze_WrongOwnerNoJob(t *testing.T) {
	svc, db, q, cleanup := setupDealService(t)
	defer cleanup()

	owner := testutil.TestUser(t, db)
	attacker := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, owner.ID, testutil.WithDealStatus(model.DealStatusDraft))

	_, err := svc.Analyze(context.Background(), attacker.ID, deal.ID)
	assert.ErrorIs(t, err, ErrDealPermission)

	// 鉴权失败不产生任何副作用
	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Zero(t, length)

	var count int64
	db.Model(&model.AnalysisJob{}).Count(&count)
	assert.Zero(t, count)
}

func TestDealService_Analyze_QuotaExceeded(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db, testutil.WithDailyQuota(1), testutil.WithQuotaUsed(1))
	deal := testutil.TestDeal(t, db, user.ID, testutil.WithDealStatus(model.DealStatusDraft))

	_, err := svc.Analyze(context.Background(), user.ID, deal.ID)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestDealService_Analyze_AlreadyInProgress(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, user.ID, testutil.WithDealStatus(model.DealStatusAnalyzing))

	_, err := svc.Analyze(context.Background(), user.ID, deal.ID)
	assert.ErrorIs(t, err, ErrDealInProgress)
}

func TestDealService_Analyze_NoDocument(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, user.ID, testutil.WithDealStatus(model.DealStatusDraft))
	require.NoError(t, db.Model(&model.Deal{}).Where("id = ?", deal.ID).Update("document_key", "").Error)

	_, err := svc.Analyze(context.Background(), user.ID, deal.ID)
	assert.ErrorIs(t, err, ErrDealNoDocument)
}

func TestDealService_Delete(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, user.ID, testutil.WithDealStatus(model.DealStatusCompleted))

	require.NoError(t, svc.Delete(user.ID, deal.ID))

	_, err := svc.GetByID(user.ID, deal.ID)
	assert.ErrorIs(t, err, ErrDealNotFound)
}

func TestDealService_Delete_InProgressRejected(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, user.ID, testutil.WithDealStatus(model.DealStatusAnalyzing))

	assert.ErrorIs(t, svc.Delete(user.ID, deal.ID), ErrDealInProgress)
}

func TestDealService_GetJobStatus(t *testing.T) {
	svc, db, _, cleanup := setupDealService(t)
	defer cleanup()

	user := testutil.TestUser(t, db)
	deal := testutil.TestDeal(t, db, user.ID)

	_, err := svc.GetJobStatus(user.ID, deal.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	job := testutil.TestJob(t, db, user.ID, deal.ID, model.JobStatusProcessing)

	resp, err := svc.GetJobStatus(user.ID, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, resp.JobID)
	assert.Equal(t, model.JobStatusProcessing, resp.Status)
}
