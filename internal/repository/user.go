package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vip-access-bot/internal/model"
)

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id int64) (*model.User, error)
	MarkVerified(ctx context.Context, id int64) error
	AllIDs(ctx context.Context) iter.Seq2[int64, error]
	Count(ctx context.Context) (int64, error)
}

type userRepoImpl struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepoImpl{
		db: db,
	}
}

// Upsert refreshes the profile fields and never touches verification.
func (r *userRepoImpl) Upsert(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":   user.Username,
			"first_name": user.FirstName,
			"updated_at": time.Now(),
		}),
	}).Create(user).Error
}

func (r *userRepoImpl) Get(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&user).Error

	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *userRepoImpl) MarkVerified(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"verified":   true,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *userRepoImpl) AllIDs(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		var cursor int64
		for {
			var ids []int64
			err := r.db.WithContext(ctx).
				Model(&model.User{}).
				Where("id > ?", cursor).
				Order("id").
				Limit(activeBatchSize).
				Pluck("id", &ids).
				Error
			if err != nil {
				yield(0, fmt.Errorf("list users: %w", err))
				return
			}

			for _, id := range ids {
				if !yield(id, nil) {
					return
				}
			}

			if len(ids) < activeBatchSize {
				return
			}
			cursor = ids[len(ids)-1]
		}
	}
}

func (r *userRepoImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&count).Error
	return count, err
}
