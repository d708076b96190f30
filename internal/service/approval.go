package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

// Control identifies the operator message carrying approve/reject buttons.
type Control struct {
	ChatID    int64
	MessageID int
}

func (c Control) ID() string {
	return fmt.Sprintf("%d:%d", c.ChatID, c.MessageID)
}

// ProofRequest is the snapshot of a finished conversation.
type ProofRequest struct {
	BuyerID       int64
	Username      string
	FirstName     string
	CategoryKey   string
	PlanID        string
	PaymentMethod model.PaymentMethod
}

type ApprovalOutcome struct {
	Subscription *model.Subscription
	Access       AccessResult
	// AccessErr is set when every grant strategy failed. The subscription stands.
	AccessErr error
}

type ApprovalService interface {
	Submit(ctx context.Context, req ProofRequest, proof client.Proof) (Control, error)
	Approve(ctx context.Context, senderID int64, control Control, buyerID int64, categoryKey, planID string) (*ApprovalOutcome, error)
	Reject(ctx context.Context, senderID int64, control Control, buyerID int64) error
}

type approvalServiceImpl struct {
	db           *gorm.DB
	adminID      int64
	retry        RetryPolicy
	now          func() time.Time
	log          zerolog.Logger
	tg           client.TelegramClient
	catalog      CatalogService
	access       AccessService
	approvalRepo repository.ApprovalRepository
	subRepo      repository.SubscriptionRepository
	userRepo     repository.UserRepository
}

func NewApprovalService(
	db *gorm.DB,
	adminID int64,
	retry RetryPolicy,
	now func() time.Time,
	log zerolog.Logger,
	tg client.TelegramClient,
	catalog CatalogService,
	access AccessService,
	approvalRepo repository.ApprovalRepository,
	subRepo repository.SubscriptionRepository,
	userRepo repository.UserRepository,
) ApprovalService {
	if now == nil {
		now = time.Now
	}
	return &approvalServiceImpl{
		db:           db,
		adminID:      adminID,
		retry:        retry,
		now:          now,
		log:          log.With().Str("component", "approval").Logger(),
		tg:           tg,
		catalog:      catalog,
		access:       access,
		approvalRepo: approvalRepo,
		subRepo:      subRepo,
		userRepo:     userRepo,
	}
}

func (s *approvalServiceImpl) Submit(ctx context.Context, req ProofRequest, proof client.Proof) (Control, error) {
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		return Control{}, err
	}
	cat, plan := settings.Lookup(req.CategoryKey, req.PlanID)
	if cat == nil || plan == nil {
		return Control{}, ErrCatalogMismatch
	}

	caption := proofCaption(buyerLabel(req.BuyerID, req.Username, req.FirstName), cat, plan, req.PaymentMethod)
	msgID, err := s.tg.SendProof(s.adminID, proof, caption, approvalKeyboard(req.BuyerID, cat.Key, plan.ID))
	if err != nil {
		return Control{}, fmt.Errorf("forward proof to operator: %w", err)
	}

	s.log.Info().
		Int64("buyer_id", req.BuyerID).
		Str("category", cat.Key).
		Str("plan", plan.ID).
		Int("control_message_id", msgID).
		Msg("proof forwarded")

	return Control{ChatID: s.adminID, MessageID: msgID}, nil
}

func (s *approvalServiceImpl) Approve(ctx context.Context, senderID int64, control Control, buyerID int64, categoryKey, planID string) (*ApprovalOutcome, error) {
	if senderID != s.adminID {
		s.log.Warn().Int64("sender_id", senderID).Msg("unauthorized approve")
		return nil, ErrUnauthorized
	}

	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		return nil, err
	}
	cat, plan := settings.Lookup(categoryKey, planID)
	if cat == nil || plan == nil {
		return nil, fmt.Errorf("approve %s/%s: %w", categoryKey, planID, ErrCatalogMismatch)
	}

	now := s.now().UTC()
	target := cat.Target(plan)
	sub := &model.Subscription{
		ID:          uuid.NewString(),
		BuyerID:     buyerID,
		CategoryKey: cat.Key,
		PlanID:      plan.ID,
		ChatID:      target.ChatID,
		ApprovalID:  control.ID(),
		PurchasedAt: now,
		ExpiresAt:   now.AddDate(0, 0, plan.Days),
		Status:      model.SubscriptionActive,
	}

	err = retryExec(ctx, s.retry, "record approval", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			claimed, err := s.approvalRepo.Claim(ctx, tx, &model.ApprovalRecord{
				ControlID:  control.ID(),
				Decision:   model.DecisionApproved,
				BuyerID:    buyerID,
				OperatorID: senderID,
				DecidedAt:  now,
			})
			if err != nil {
				return fmt.Errorf("claim control: %w", err)
			}
			if !claimed {
				return ErrAlreadyProcessed
			}

			if err := s.subRepo.Insert(ctx, tx, sub); err != nil {
				return fmt.Errorf("insert subscription: %w", err)
			}
			return nil
		})
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return nil, s.processed(ctx, control)
	}
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("subscription_id", sub.ID).Int64("buyer_id", buyerID).Logger()
	log.Info().Time("expires_at", sub.ExpiresAt).Msg("subscription recorded")

	outcome := &ApprovalOutcome{Subscription: sub}
	outcome.Access, outcome.AccessErr = s.access.Grant(ctx, buyerID, target)
	if outcome.AccessErr != nil {
		log.Error().Err(outcome.AccessErr).Msg("grant failed")
	}

	buyer := buyerLabel(buyerID, "", "")
	if u, err := s.userRepo.Get(ctx, buyerID); err == nil {
		buyer = buyerLabel(buyerID, u.Username, u.FirstName)
	}
	if _, err := s.tg.SendText(buyerID, receiptText(buyer, cat, plan, sub, outcome.Access), nil); err != nil {
		log.Error().Err(err).Msg("receipt delivery failed")
	}

	caption := approvedCaption(now, buyer, cat, plan, outcome.Access.Method)
	if err := s.tg.EditCaption(control.ChatID, control.MessageID, caption); err != nil {
		log.Warn().Err(err).Msg("consume control failed")
	}

	return outcome, nil
}

func (s *approvalServiceImpl) Reject(ctx context.Context, senderID int64, control Control, buyerID int64) error {
	if senderID != s.adminID {
		s.log.Warn().Int64("sender_id", senderID).Msg("unauthorized reject")
		return ErrUnauthorized
	}

	now := s.now().UTC()
	claimed, err := withRetry(ctx, s.retry, "record rejection", func(ctx context.Context) (bool, error) {
		return s.approvalRepo.Claim(ctx, nil, &model.ApprovalRecord{
			ControlID:  control.ID(),
			Decision:   model.DecisionRejected,
			BuyerID:    buyerID,
			OperatorID: senderID,
			DecidedAt:  now,
		})
	})
	if err != nil {
		return err
	}
	if !claimed {
		return s.processed(ctx, control)
	}

	log := s.log.With().Int64("buyer_id", buyerID).Logger()
	if _, err := s.tg.SendText(buyerID, textRejected, nil); err != nil {
		log.Error().Err(err).Msg("rejection notice failed")
	}
	if err := s.tg.EditCaption(control.ChatID, control.MessageID, rejectedCaption(now, buyerID)); err != nil {
		log.Warn().Err(err).Msg("consume control failed")
	}
	log.Info().Msg("proof rejected")
	return nil
}

// processed looks up the decision that consumed control. Without it the
// caller still gets ErrAlreadyProcessed.
func (s *approvalServiceImpl) processed(ctx context.Context, control Control) error {
	record, err := withRetry(ctx, s.retry, "get approval", func(ctx context.Context) (*model.ApprovalRecord, error) {
		return s.approvalRepo.Get(ctx, control.ID())
	})
	if err != nil {
		s.log.Warn().Err(err).Str("control_id", control.ID()).Msg("load earlier decision failed")
		return ErrAlreadyProcessed
	}
	return &ProcessedError{Decision: record.Decision, DecidedAt: record.DecidedAt}
}
