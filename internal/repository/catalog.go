package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vip-access-bot/internal/model"
)

type PaymentField string

const (
	PaymentFieldUPIID      PaymentField = "upi_id"
	PaymentFieldPayeeName  PaymentField = "payee_name"
	PaymentFieldPayPalLink PaymentField = "paypal_link"
	PaymentFieldBankText   PaymentField = "bank_text"
)

func (f PaymentField) Valid() bool {
	switch f {
	case PaymentFieldUPIID, PaymentFieldPayeeName, PaymentFieldPayPalLink, PaymentFieldBankText:
		return true
	}
	return false
}

// CatalogRepository stores the Settings document as one row per settings,
// category and plan so every mutation touches a single keyed row.
type CatalogRepository interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	UpsertCategory(ctx context.Context, category *model.Category) error
	UpsertPlan(ctx context.Context, plan *model.Plan) error
	DeleteCategory(ctx context.Context, key string) error
	DeletePlan(ctx context.Context, categoryKey, planID string) error
	SetAccessTarget(ctx context.Context, categoryKey string, chatID int64, kind model.ChatKind) error
	SetPaymentField(ctx context.Context, field PaymentField, value string) error
}

type catalogRepoImpl struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepoImpl{
		db: db,
	}
}

func defaultSettings() (*model.Settings, []*model.Category, []*model.Plan) {
	settings := &model.Settings{
		ID:         model.SettingsID,
		UPIID:      "your-upi@oksbi",
		PayeeName:  "VIP_Subscription",
		PayPalLink: "paypal.me/example",
	}
	categories := []*model.Category{
		{Key: "movie", Name: "🎬 Movies & Series", Link: "https://t.me/+ExampleMovie", Position: 1},
		{Key: "coding", Name: "💻 Coding Resources", Link: "https://t.me/+ExampleCode", Position: 2},
		{Key: "gaming", Name: "🎮 Gaming & Mods", Link: "https://t.me/+ExampleGame", Position: 3},
	}
	plans := []*model.Plan{
		{CategoryKey: "movie", ID: "p1", Label: "30 days", Days: 30, Price: "100 INR", Position: 1},
		{CategoryKey: "coding", ID: "p1", Label: "30 days", Days: 30, Price: "200 INR", Position: 1},
		{CategoryKey: "gaming", ID: "p1", Label: "30 days", Days: 30, Price: "120 INR", Position: 1},
	}
	return settings, categories, plans
}

// seed creates the settings row and, only when this call created it, the
// default catalog. A catalog emptied by the operator is never re-seeded.
func (r *catalogRepoImpl) seed(ctx context.Context) error {
	settings, categories, plans := defaultSettings()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(settings)
		if result.Error != nil {
			return fmt.Errorf("create settings: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&categories).Error; err != nil {
			return fmt.Errorf("create default categories: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&plans).Error; err != nil {
			return fmt.Errorf("create default plans: %w", err)
		}
		return nil
	})
}

func (r *catalogRepoImpl) GetSettings(ctx context.Context) (*model.Settings, error) {
	var settings model.Settings
	err := r.db.WithContext(ctx).
		Where("id = ?", model.SettingsID).
		First(&settings).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.seed(ctx); err != nil {
			return nil, fmt.Errorf("seed settings: %w", err)
		}
		err = r.db.WithContext(ctx).
			Where("id = ?", model.SettingsID).
			First(&settings).Error
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	var categories []*model.Category
	if err := r.db.WithContext(ctx).
		Order("position, category_key").
		Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}

	var plans []*model.Plan
	if err := r.db.WithContext(ctx).
		Order("category_key, position, id").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("get plans: %w", err)
	}

	settings.Categories = make(map[string]*model.Category, len(categories))
	for _, c := range categories {
		settings.Categories[c.Key] = c
	}
	for _, p := range plans {
		if c, ok := settings.Categories[p.CategoryKey]; ok {
			c.Plans = append(c.Plans, p)
		}
	}

	return &settings, nil
}

func (r *catalogRepoImpl) UpsertCategory(ctx context.Context, category *model.Category) error {
	if category.Position == 0 {
		var maxPos int
		if err := r.db.WithContext(ctx).
			Model(&model.Category{}).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("get category position: %w", err)
		}
		category.Position = maxPos + 1
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "category_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"name":       category.Name,
			"link":       category.Link,
			"updated_at": time.Now(),
		}),
	}).Create(category).Error
}

func (r *catalogRepoImpl) UpsertPlan(ctx context.Context, plan *model.Plan) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&model.Category{}).
		Where("category_key = ?", plan.CategoryKey).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("category %q: %w", plan.CategoryKey, gorm.ErrRecordNotFound)
	}

	if plan.Position == 0 {
		var maxPos int
		if err := r.db.WithContext(ctx).
			Model(&model.Plan{}).
			Where("category_key = ?", plan.CategoryKey).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPos).Error; err != nil {
			return fmt.Errorf("get plan position: %w", err)
		}
		plan.Position = maxPos + 1
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "category_key"}, {Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"label":      plan.Label,
			"days":       plan.Days,
			"price":      plan.Price,
			"chat_id":    plan.ChatID,
			"updated_at": time.Now(),
		}),
	}).Create(plan).Error
}

func (r *catalogRepoImpl) DeleteCategory(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("category_key = ?", key).Delete(&model.Plan{}).Error; err != nil {
			return fmt.Errorf("delete plans: %w", err)
		}

		result := tx.Where("category_key = ?", key).Delete(&model.Category{})
		if result.Error != nil {
			return fmt.Errorf("delete category: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("category %q: %w", key, gorm.ErrRecordNotFound)
		}
		return nil
	})
}

func (r *catalogRepoImpl) DeletePlan(ctx context.Context, categoryKey, planID string) error {
	result := r.db.WithContext(ctx).
		Where("category_key = ? AND id = ?", categoryKey, planID).
		Delete(&model.Plan{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("plan %s/%s: %w", categoryKey, planID, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *catalogRepoImpl) SetAccessTarget(ctx context.Context, categoryKey string, chatID int64, kind model.ChatKind) error {
	result := r.db.WithContext(ctx).
		Model(&model.Category{}).
		Where("category_key = ?", categoryKey).
		Updates(map[string]interface{}{
			"chat_id":    chatID,
			"chat_kind":  kind,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("category %q: %w", categoryKey, gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *catalogRepoImpl) SetPaymentField(ctx context.Context, field PaymentField, value string) error {
	if !field.Valid() {
		return fmt.Errorf("unknown payment field %q", field)
	}
	if _, err := r.GetSettings(ctx); err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Model(&model.Settings{}).
		Where("id = ?", model.SettingsID).
		Updates(map[string]interface{}{
			string(field): value,
			"updated_at":  time.Now(),
		}).Error
}
