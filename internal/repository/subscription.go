package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	"gorm.io/gorm"

	"vip-access-bot/internal/model"
)

const activeBatchSize = 100

type SubscriptionRepository interface {
	Insert(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error
	// ListActive streams active entries in id order, one batch at a time.
	// Ranging over it again re-queries the store.
	ListActive(ctx context.Context) iter.Seq2[*model.Subscription, error]
	ListActiveByBuyer(ctx context.Context, buyerID int64) ([]*model.Subscription, error)
	// HasActiveCover reports whether the buyer holds another active entry for
	// the same access target that is still valid at the given time.
	HasActiveCover(ctx context.Context, sub *model.Subscription, at time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id string) (bool, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int64, error)
}

type subscriptionRepoImpl struct {
	db        *gorm.DB
	batchSize int
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepoImpl{
		db:        db,
		batchSize: activeBatchSize,
	}
}

func (r *subscriptionRepoImpl) Insert(ctx context.Context, tx *gorm.DB, sub *model.Subscription) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepoImpl) ListActive(ctx context.Context) iter.Seq2[*model.Subscription, error] {
	return func(yield func(*model.Subscription, error) bool) {
		cursor := ""
		for {
			var batch []*model.Subscription
			err := r.db.WithContext(ctx).
				Where("status = ? AND id > ?", model.SubscriptionActive, cursor).
				Order("id").
				Limit(r.batchSize).
				Find(&batch).
				Error
			if err != nil {
				yield(nil, fmt.Errorf("list active subscriptions: %w", err))
				return
			}

			for _, sub := range batch {
				if !yield(sub, nil) {
					return
				}
			}

			if len(batch) < r.batchSize {
				return
			}
			cursor = batch[len(batch)-1].ID
		}
	}
}

func (r *subscriptionRepoImpl) ListActiveByBuyer(ctx context.Context, buyerID int64) ([]*model.Subscription, error) {
	var subs []*model.Subscription
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND status = ?", buyerID, model.SubscriptionActive).
		Order("expires_at").
		Find(&subs).
		Error

	if err != nil {
		return nil, err
	}

	return subs, nil
}

func (r *subscriptionRepoImpl) HasActiveCover(ctx context.Context, sub *model.Subscription, at time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("buyer_id = ? AND status = ? AND id <> ? AND expires_at > ?",
			sub.BuyerID, model.SubscriptionActive, sub.ID, at)

	// entries without a chat are granted by the category's static link
	if sub.ChatID != 0 {
		query = query.Where("chat_id = ?", sub.ChatID)
	} else {
		query = query.Where("chat_id = 0 AND category_key = ?", sub.CategoryKey)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkReminderSent flips reminder_sent to true. It reports false when the flag
// was already set.
func (r *subscriptionRepoImpl) MarkReminderSent(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND reminder_sent = ?", id, false).
		Updates(map[string]interface{}{
			"reminder_sent": true,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkExpired moves an active entry to expired. It reports false when the entry
// was not active.
func (r *subscriptionRepoImpl) MarkExpired(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("id = ? AND status = ?", id, model.SubscriptionActive).
		Updates(map[string]interface{}{
			"status":     model.SubscriptionExpired,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *subscriptionRepoImpl) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int64, error) {
	var rows []struct {
		Status model.SubscriptionStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).
		Error

	if err != nil {
		return nil, err
	}

	counts := make(map[model.SubscriptionStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
