package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/model"
)

type AccessMethod string

const (
	AccessDirect     AccessMethod = "direct"
	AccessInviteLink AccessMethod = "invite_link"
	AccessStaticLink AccessMethod = "static_link"
	AccessNone       AccessMethod = "none"
)

// AccessResult reports which grant strategy worked. Link is empty for direct grants.
type AccessResult struct {
	Method AccessMethod
	Link   string
	ChatID int64
}

type AccessService interface {
	Grant(ctx context.Context, buyerID int64, target model.AccessTarget) (AccessResult, error)
	Revoke(ctx context.Context, buyerID, chatID int64) error
}

type accessServiceImpl struct {
	tg        client.TelegramClient
	inviteTTL time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewAccessService(
	tg client.TelegramClient,
	inviteTTL time.Duration,
	now func() time.Time,
	log zerolog.Logger,
) AccessService {
	if now == nil {
		now = time.Now
	}
	return &accessServiceImpl{
		tg:        tg,
		inviteTTL: inviteTTL,
		now:       now,
		log:       log.With().Str("component", "access").Logger(),
	}
}

// Grant tries, in order: approving the buyer's join request, a single-use
// invite link, the category's static link.
func (s *accessServiceImpl) Grant(ctx context.Context, buyerID int64, target model.AccessTarget) (AccessResult, error) {
	if target.ChatID == 0 {
		if target.Link != "" {
			return AccessResult{Method: AccessStaticLink, Link: target.Link}, nil
		}
		return AccessResult{Method: AccessNone}, fmt.Errorf("%w: no access target configured", ErrProvisioning)
	}

	log := s.log.With().Int64("buyer_id", buyerID).Int64("chat_id", target.ChatID).Logger()

	// a buyer revoked earlier may still be on the ban list
	if err := s.tg.UnbanMember(target.ChatID, buyerID, true); err != nil {
		log.Debug().Err(err).Msg("pre-grant unban failed")
	}

	err := s.tg.ApproveJoinRequest(target.ChatID, buyerID)
	if err == nil {
		return AccessResult{Method: AccessDirect, ChatID: target.ChatID}, nil
	}
	log.Info().Err(err).Msg("direct grant refused, minting invite link")

	var expireAt time.Time
	if s.inviteTTL > 0 {
		expireAt = s.now().Add(s.inviteTTL)
	}
	link, inviteErr := s.tg.CreateInviteLink(target.ChatID, fmt.Sprintf("buyer %d", buyerID), expireAt, 1)
	if inviteErr == nil {
		return AccessResult{Method: AccessInviteLink, Link: link, ChatID: target.ChatID}, nil
	}
	log.Warn().Err(inviteErr).Msg("invite link creation failed")

	if target.Link != "" {
		return AccessResult{Method: AccessStaticLink, Link: target.Link, ChatID: target.ChatID}, nil
	}
	return AccessResult{Method: AccessNone, ChatID: target.ChatID},
		fmt.Errorf("%w: grant %d in %d: %w", ErrProvisioning, buyerID, target.ChatID, inviteErr)
}

// Revoke removes the buyer and lifts the ban right away so they can buy again.
func (s *accessServiceImpl) Revoke(ctx context.Context, buyerID, chatID int64) error {
	if chatID == 0 {
		return nil
	}

	if err := s.tg.BanMember(chatID, buyerID); err != nil {
		return fmt.Errorf("%w: remove %d from %d: %w", ErrProvisioning, buyerID, chatID, err)
	}
	if err := s.tg.UnbanMember(chatID, buyerID, true); err != nil {
		return fmt.Errorf("%w: unban %d in %d: %w", ErrProvisioning, buyerID, chatID, err)
	}
	return nil
}
