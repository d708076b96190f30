package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vip-access-bot/internal/client/clienttest"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

func TestGetSettingsSeedsDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(clienttest.NewTestDB(t))

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SettingsID, settings.ID)
	assert.NotEmpty(t, settings.UPIID)
	require.Contains(t, settings.Categories, "movie")
	require.Len(t, settings.Categories["movie"].Plans, 1)

	require.NoError(t, repo.DeleteCategory(ctx, "movie"))

	settings, err = repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.NotContains(t, settings.Categories, "movie")
}

func TestUpsertCategoryAndPlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(clienttest.NewTestDB(t))

	require.NoError(t, repo.UpsertCategory(ctx, &model.Category{Key: "movie", Name: "Movies", Link: "https://t.me/+m"}))
	require.NoError(t, repo.UpsertPlan(ctx, &model.Plan{CategoryKey: "movie", ID: "p1", Label: "Month", Days: 30, Price: "100"}))

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)

	cat := settings.Categories["movie"]
	require.NotNil(t, cat)
	assert.Equal(t, "Movies", cat.Name)

	plan := cat.Plan("p1")
	require.NotNil(t, plan)
	assert.Equal(t, "p1", plan.ID)
	assert.Equal(t, "Month", plan.Label)
	assert.Equal(t, 30, plan.Days)
	assert.Equal(t, "100", plan.Price)
}

func TestUpsertPlanReplacesByID(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(clienttest.NewTestDB(t))

	require.NoError(t, repo.UpsertCategory(ctx, &model.Category{Key: "vip", Name: "VIP"}))
	require.NoError(t, repo.UpsertPlan(ctx, &model.Plan{CategoryKey: "vip", ID: "p1", Label: "a", Days: 7, Price: "10"}))
	require.NoError(t, repo.UpsertPlan(ctx, &model.Plan{CategoryKey: "vip", ID: "p2", Label: "b", Days: 30, Price: "30"}))
	require.NoError(t, repo.UpsertPlan(ctx, &model.Plan{CategoryKey: "vip", ID: "p1", Label: "a2", Days: 14, Price: "15"}))

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)

	plans := settings.Categories["vip"].Plans
	require.Len(t, plans, 2)
	assert.Equal(t, "p1", plans[0].ID)
	assert.Equal(t, 14, plans[0].Days)
	assert.Equal(t, "a2", plans[0].Label)
}

func TestUpsertCategoryKeepsAccessTarget(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(clienttest.NewTestDB(t))

	require.NoError(t, repo.UpsertCategory(ctx, &model.Category{Key: "vip", Name: "VIP"}))
	require.NoError(t, repo.SetAccessTarget(ctx, "vip", -1001, model.ChatKindChannel))
	require.NoError(t, repo.UpsertCategory(ctx, &model.Category{Key: "vip", Name: "VIP 2"}))

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "VIP 2", settings.Categories["vip"].Name)
	assert.Equal(t, int64(-1001), settings.Categories["vip"].ChatID)
	assert.Equal(t, model.ChatKindChannel, settings.Categories["vip"].ChatKind)
}

func TestCatalogMutationsOnMissingKeys(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(clienttest.NewTestDB(t))

	assert.ErrorIs(t, repo.UpsertPlan(ctx, &model.Plan{CategoryKey: "nope", ID: "p1", Label: "x", Days: 1, Price: "1"}), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.DeletePlan(ctx, "nope", "p1"), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.DeleteCategory(ctx, "nope"), gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.SetAccessTarget(ctx, "nope", 1, model.ChatKindGroup), gorm.ErrRecordNotFound)
}

func TestSetPaymentField(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCatalogRepository(clienttest.NewTestDB(t))

	require.NoError(t, repo.SetPaymentField(ctx, repository.PaymentFieldUPIID, "shop@upi"))
	assert.Error(t, repo.SetPaymentField(ctx, repository.PaymentField("categories"), "x"))

	settings, err := repo.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shop@upi", settings.UPIID)
}

func TestDeleteCategoryRemovesPlans(t *testing.T) {
	ctx := context.Background()
	db := clienttest.NewTestDB(t)
	repo := repository.NewCatalogRepository(db)

	require.NoError(t, repo.UpsertCategory(ctx, &model.Category{Key: "vip", Name: "VIP"}))
	require.NoError(t, repo.UpsertPlan(ctx, &model.Plan{CategoryKey: "vip", ID: "p1", Label: "a", Days: 7, Price: "10"}))
	require.NoError(t, repo.DeleteCategory(ctx, "vip"))

	var count int64
	require.NoError(t, db.Model(&model.Plan{}).Where("category_key = ?", "vip").Count(&count).Error)
	assert.Zero(t, count)
}
