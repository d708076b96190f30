package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

const broadcastPace = 40 * time.Millisecond

type BroadcastReport struct {
	Sent   int
	Failed int
}

type Stats struct {
	Users   int64
	Active  int64
	Expired int64
}

type UserService interface {
	Register(ctx context.Context, user *model.User) error
	IsVerified(ctx context.Context, id int64) (bool, error)
	Verify(ctx context.Context, id int64) error
	ActiveSubscriptions(ctx context.Context, buyerID int64) ([]*model.Subscription, error)

	Broadcast(ctx context.Context, senderID int64, text string) (BroadcastReport, error)
	Stats(ctx context.Context, senderID int64) (*Stats, error)
}

type userServiceImpl struct {
	adminID  int64
	retry    RetryPolicy
	pace     time.Duration
	log      zerolog.Logger
	tg       client.TelegramClient
	userRepo repository.UserRepository
	subRepo  repository.SubscriptionRepository
}

func NewUserService(
	adminID int64,
	retry RetryPolicy,
	log zerolog.Logger,
	tg client.TelegramClient,
	userRepo repository.UserRepository,
	subRepo repository.SubscriptionRepository,
) UserService {
	return &userServiceImpl{
		adminID:  adminID,
		retry:    retry,
		pace:     broadcastPace,
		log:      log.With().Str("component", "users").Logger(),
		tg:       tg,
		userRepo: userRepo,
		subRepo:  subRepo,
	}
}

func (s *userServiceImpl) Register(ctx context.Context, user *model.User) error {
	return retryExec(ctx, s.retry, "register user", func(ctx context.Context) error {
		return s.userRepo.Upsert(ctx, user)
	})
}

func (s *userServiceImpl) IsVerified(ctx context.Context, id int64) (bool, error) {
	user, err := withRetry(ctx, s.retry, "get user", func(ctx context.Context) (*model.User, error) {
		return s.userRepo.Get(ctx, id)
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return user.Verified, nil
}

func (s *userServiceImpl) Verify(ctx context.Context, id int64) error {
	return retryExec(ctx, s.retry, "verify user", func(ctx context.Context) error {
		return s.userRepo.MarkVerified(ctx, id)
	})
}

func (s *userServiceImpl) ActiveSubscriptions(ctx context.Context, buyerID int64) ([]*model.Subscription, error) {
	return withRetry(ctx, s.retry, "list subscriptions", func(ctx context.Context) ([]*model.Subscription, error) {
		return s.subRepo.ListActiveByBuyer(ctx, buyerID)
	})
}

// Broadcast messages every known user. Delivery failures are counted per
// recipient; only a store failure stops the loop.
func (s *userServiceImpl) Broadcast(ctx context.Context, senderID int64, text string) (BroadcastReport, error) {
	var report BroadcastReport
	if senderID != s.adminID {
		return report, ErrUnauthorized
	}
	if text == "" {
		return report, ErrInvalidInput
	}

	for id, err := range s.userRepo.AllIDs(ctx) {
		if err != nil {
			return report, err
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if _, err := s.tg.SendText(id, text, nil); err != nil {
			report.Failed++
			s.log.Debug().Err(err).Int64("user_id", id).Msg("broadcast delivery failed")
		} else {
			report.Sent++
		}

		if s.pace > 0 {
			time.Sleep(s.pace)
		}
	}

	s.log.Info().Int("sent", report.Sent).Int("failed", report.Failed).Msg("broadcast finished")
	return report, nil
}

func (s *userServiceImpl) Stats(ctx context.Context, senderID int64) (*Stats, error) {
	if senderID != s.adminID {
		return nil, ErrUnauthorized
	}

	users, err := withRetry(ctx, s.retry, "count users", s.userRepo.Count)
	if err != nil {
		return nil, err
	}
	counts, err := withRetry(ctx, s.retry, "count subscriptions", s.subRepo.CountByStatus)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Users:   users,
		Active:  counts[model.SubscriptionActive],
		Expired: counts[model.SubscriptionExpired],
	}, nil
}
