package service_test

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-access-bot/internal/model"
	"vip-access-bot/internal/service"
)

func refuse(kinds ...func(tgbotapi.Chattable) bool) func(tgbotapi.Chattable) error {
	return func(c tgbotapi.Chattable) error {
		for _, k := range kinds {
			if k(c) {
				return &tgbotapi.Error{Code: 400, Message: "Bad Request: not enough rights"}
			}
		}
		return nil
	}
}

func isJoinApproval(c tgbotapi.Chattable) bool {
	_, ok := c.(tgbotapi.ApproveChatJoinRequestConfig)
	return ok
}

func isInvite(c tgbotapi.Chattable) bool {
	_, ok := c.(tgbotapi.CreateChatInviteLinkConfig)
	return ok
}

func TestGrantApprovesJoinRequest(t *testing.T) {
	h := newHarness(t)

	res, err := h.access.Grant(h.ctx, 7, model.AccessTarget{ChatID: -100, Link: "https://t.me/+static"})
	require.NoError(t, err)
	assert.Equal(t, service.AccessDirect, res.Method)
	assert.Empty(t, res.Link)
	assert.Equal(t, int64(-100), res.ChatID)
}

func TestGrantFallsBackToSingleUseInvite(t *testing.T) {
	h := newHarness(t)
	h.bot.Fail = refuse(isJoinApproval)

	res, err := h.access.Grant(h.ctx, 7, model.AccessTarget{ChatID: -100, Link: "https://t.me/+static"})
	require.NoError(t, err)
	assert.Equal(t, service.AccessInviteLink, res.Method)
	assert.Equal(t, "https://t.me/+fakeInvite", res.Link)

	var invite *tgbotapi.CreateChatInviteLinkConfig
	for _, c := range h.bot.Calls() {
		if cfg, ok := c.(tgbotapi.CreateChatInviteLinkConfig); ok {
			invite = &cfg
		}
	}
	require.NotNil(t, invite)
	assert.Equal(t, 1, invite.MemberLimit)
	assert.Equal(t, int(h.now.Add(24*time.Hour).Unix()), invite.ExpireDate)
}

func TestGrantFallsBackToStaticLink(t *testing.T) {
	h := newHarness(t)
	h.bot.Fail = refuse(isJoinApproval, isInvite)

	res, err := h.access.Grant(h.ctx, 7, model.AccessTarget{ChatID: -100, Link: "https://t.me/+static"})
	require.NoError(t, err)
	assert.Equal(t, service.AccessStaticLink, res.Method)
	assert.Equal(t, "https://t.me/+static", res.Link)
}

func TestGrantFailsWithoutAnyRoute(t *testing.T) {
	h := newHarness(t)
	h.bot.Fail = refuse(isJoinApproval, isInvite)

	res, err := h.access.Grant(h.ctx, 7, model.AccessTarget{ChatID: -100})
	assert.ErrorIs(t, err, service.ErrProvisioning)
	assert.Equal(t, service.AccessNone, res.Method)

	_, err = h.access.Grant(h.ctx, 7, model.AccessTarget{})
	assert.ErrorIs(t, err, service.ErrProvisioning)
}

func TestGrantWithoutChatUsesStaticLink(t *testing.T) {
	h := newHarness(t)

	res, err := h.access.Grant(h.ctx, 7, model.AccessTarget{Link: "https://t.me/+static"})
	require.NoError(t, err)
	assert.Equal(t, service.AccessStaticLink, res.Method)
	assert.Empty(t, h.bot.Calls())
}

func TestRevokeBansThenUnbans(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.access.Revoke(h.ctx, 7, -100))
	calls := h.bot.Calls()
	require.Len(t, calls, 2)
	assert.IsType(t, tgbotapi.BanChatMemberConfig{}, calls[0])
	assert.IsType(t, tgbotapi.UnbanChatMemberConfig{}, calls[1])

	h.bot.Reset()
	require.NoError(t, h.access.Revoke(h.ctx, 7, 0))
	assert.Empty(t, h.bot.Calls())
}

func TestRevokeReportsPlatformFailure(t *testing.T) {
	h := newHarness(t)
	h.bot.Fail = func(c tgbotapi.Chattable) error {
		return &tgbotapi.Error{Code: 400, Message: "Bad Request: CHAT_ADMIN_REQUIRED"}
	}

	err := h.access.Revoke(h.ctx, 7, -100)
	assert.ErrorIs(t, err, service.ErrProvisioning)
	assert.Contains(t, err.Error(), "CHAT_ADMIN_REQUIRED")
}
