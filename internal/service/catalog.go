package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,15}$`)

type CatalogService interface {
	Settings(ctx context.Context) (*model.Settings, error)

	UpsertCategory(ctx context.Context, senderID int64, key, name, link string) error
	UpsertPlan(ctx context.Context, senderID int64, plan *model.Plan) error
	DeleteCategory(ctx context.Context, senderID int64, key string) error
	DeletePlan(ctx context.Context, senderID int64, categoryKey, planID string) error
	SetAccessTarget(ctx context.Context, senderID int64, categoryKey string, chatID int64, kind model.ChatKind) error
	SetPaymentField(ctx context.Context, senderID int64, field repository.PaymentField, value string) error
}

type catalogServiceImpl struct {
	adminID     int64
	retry       RetryPolicy
	validate    *validator.Validate
	catalogRepo repository.CatalogRepository
}

func NewCatalogService(
	adminID int64,
	retry RetryPolicy,
	catalogRepo repository.CatalogRepository,
) CatalogService {
	return &catalogServiceImpl{
		adminID:     adminID,
		retry:       retry,
		validate:    newValidator(),
		catalogRepo: catalogRepo,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

type categoryInput struct {
	Key  string `validate:"required,slug"`
	Name string `validate:"required,max=128"`
	Link string `validate:"omitempty,max=255"`
}

type planInput struct {
	CategoryKey string `validate:"required,slug"`
	ID          string `validate:"required,slug"`
	Label       string `validate:"required,max=128"`
	Days        int    `validate:"min=1,max=3650"`
	Price       string `validate:"required,max=64"`
}

type targetInput struct {
	CategoryKey string         `validate:"required,slug"`
	ChatID      int64          `validate:"ne=0"`
	Kind        model.ChatKind `validate:"oneof=channel group"`
}

func (s *catalogServiceImpl) Settings(ctx context.Context) (*model.Settings, error) {
	return withRetry(ctx, s.retry, "get settings", s.catalogRepo.GetSettings)
}

func (s *catalogServiceImpl) UpsertCategory(ctx context.Context, senderID int64, key, name, link string) error {
	if senderID != s.adminID {
		return ErrUnauthorized
	}
	in := categoryInput{Key: key, Name: strings.TrimSpace(name), Link: strings.TrimSpace(link)}
	if err := s.check(in); err != nil {
		return err
	}

	return s.mutate(ctx, "upsert category", func(ctx context.Context) error {
		return s.catalogRepo.UpsertCategory(ctx, &model.Category{Key: in.Key, Name: in.Name, Link: in.Link})
	})
}

func (s *catalogServiceImpl) UpsertPlan(ctx context.Context, senderID int64, plan *model.Plan) error {
	if senderID != s.adminID {
		return ErrUnauthorized
	}
	if plan == nil {
		return fmt.Errorf("%w: plan is required", ErrInvalidInput)
	}
	err := s.check(planInput{
		CategoryKey: plan.CategoryKey,
		ID:          plan.ID,
		Label:       plan.Label,
		Days:        plan.Days,
		Price:       plan.Price,
	})
	if err != nil {
		return err
	}

	return s.mutate(ctx, "upsert plan", func(ctx context.Context) error {
		return s.catalogRepo.UpsertPlan(ctx, plan)
	})
}

func (s *catalogServiceImpl) DeleteCategory(ctx context.Context, senderID int64, key string) error {
	if senderID != s.adminID {
		return ErrUnauthorized
	}
	return s.mutate(ctx, "delete category", func(ctx context.Context) error {
		return s.catalogRepo.DeleteCategory(ctx, key)
	})
}

func (s *catalogServiceImpl) DeletePlan(ctx context.Context, senderID int64, categoryKey, planID string) error {
	if senderID != s.adminID {
		return ErrUnauthorized
	}
	return s.mutate(ctx, "delete plan", func(ctx context.Context) error {
		return s.catalogRepo.DeletePlan(ctx, categoryKey, planID)
	})
}

func (s *catalogServiceImpl) SetAccessTarget(ctx context.Context, senderID int64, categoryKey string, chatID int64, kind model.ChatKind) error {
	if senderID != s.adminID {
		return ErrUnauthorized
	}
	if err := s.check(targetInput{CategoryKey: categoryKey, ChatID: chatID, Kind: kind}); err != nil {
		return err
	}

	return s.mutate(ctx, "set access target", func(ctx context.Context) error {
		return s.catalogRepo.SetAccessTarget(ctx, categoryKey, chatID, kind)
	})
}

func (s *catalogServiceImpl) SetPaymentField(ctx context.Context, senderID int64, field repository.PaymentField, value string) error {
	if senderID != s.adminID {
		return ErrUnauthorized
	}
	if !field.Valid() {
		return fmt.Errorf("%w: unknown payment field %q", ErrInvalidInput, field)
	}
	value = strings.TrimSpace(value)
	if field == repository.PaymentFieldUPIID && strings.ContainsAny(value, "&? ") {
		return fmt.Errorf("%w: upi id must not contain spaces or URI delimiters", ErrInvalidInput)
	}

	return s.mutate(ctx, "set payment field", func(ctx context.Context) error {
		return s.catalogRepo.SetPaymentField(ctx, field, value)
	})
}

func (s *catalogServiceImpl) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field()))
			}
			return fmt.Errorf("%w: bad %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *catalogServiceImpl) mutate(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retryExec(ctx, s.retry, op, fn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return err
}
