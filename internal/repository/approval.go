package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vip-access-bot/internal/model"
)

type ApprovalRepository interface {
	// Claim records the decision for a control. It reports false when the
	// control was already claimed, in which case nothing is written.
	Claim(ctx context.Context, tx *gorm.DB, record *model.ApprovalRecord) (bool, error)
	Get(ctx context.Context, controlID string) (*model.ApprovalRecord, error)
}

type approvalRepoImpl struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepoImpl{db: db}
}

func (r *approvalRepoImpl) Claim(ctx context.Context, tx *gorm.DB, record *model.ApprovalRecord) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(record)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *approvalRepoImpl) Get(ctx context.Context, controlID string) (*model.ApprovalRecord, error) {
	var record model.ApprovalRecord
	err := r.db.WithContext(ctx).
		Where("control_id = ?", controlID).
		First(&record).Error

	if err != nil {
		return nil, err
	}

	return &record, nil
}
