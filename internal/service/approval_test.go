package service_test

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/service"
)

func submitProof(t *testing.T, h *harness, buyer int64) service.Control {
	t.Helper()
	control, err := h.approval.Submit(h.ctx, service.ProofRequest{
		BuyerID:       buyer,
		FirstName:     "Bob",
		CategoryKey:   "movie",
		PlanID:        "p1",
		PaymentMethod: model.PaymentUPI,
	}, client.Proof{Kind: client.ProofDocument, FileID: "doc-1"})
	require.NoError(t, err)
	return control
}

func TestApproveTwiceGrantsOnce(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(50)
	control := submitProof(t, h, buyer)

	_, err := h.approval.Approve(h.ctx, adminID, control, buyer, "movie", "p1")
	require.NoError(t, err)

	_, err = h.approval.Approve(h.ctx, adminID, control, buyer, "movie", "p1")
	assert.ErrorIs(t, err, service.ErrAlreadyProcessed)

	err = h.approval.Reject(h.ctx, adminID, control, buyer)
	var processed *service.ProcessedError
	require.ErrorAs(t, err, &processed)
	assert.Equal(t, model.DecisionApproved, processed.Decision)
	assert.True(t, h.now.Equal(processed.DecidedAt))

	assert.Len(t, h.activeSubs(), 1)
	assert.Len(t, h.bot.Outbox(buyer), 1, "one receipt, no rejection")

	var edits int
	for _, c := range h.bot.Edits() {
		if e, ok := c.(tgbotapi.EditMessageCaptionConfig); ok && e.MessageID == control.MessageID {
			edits++
		}
	}
	assert.Equal(t, 1, edits, "control consumed once")
}

func TestApproveByNonAdminHasNoEffect(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(51)
	control := submitProof(t, h, buyer)
	h.bot.Reset()

	_, err := h.approval.Approve(h.ctx, buyer, control, buyer, "movie", "p1")
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	err = h.approval.Reject(h.ctx, buyer, control, buyer)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	assert.Empty(t, h.bot.Calls(), "no message to anyone")
	assert.Empty(t, h.activeSubs())

	_, err = h.approvalRepo.Get(h.ctx, control.ID())
	assert.Error(t, err, "control still pending")

	_, err = h.approval.Approve(h.ctx, adminID, control, buyer, "movie", "p1")
	assert.NoError(t, err, "operator can still decide")
}

func TestApproveDeletedPlanIsCatalogMismatch(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(52)
	control := submitProof(t, h, buyer)

	require.NoError(t, h.catalog.DeletePlan(h.ctx, adminID, "movie", "p1"))
	h.bot.Reset()

	_, err := h.approval.Approve(h.ctx, adminID, control, buyer, "movie", "p1")
	assert.ErrorIs(t, err, service.ErrCatalogMismatch)
	assert.Empty(t, h.activeSubs())
	assert.Empty(t, h.bot.Outbox(buyer))

	_, err = h.approvalRepo.Get(h.ctx, control.ID())
	assert.Error(t, err, "control not consumed")
}

func TestApproveUsesInviteLinkWhenJoinRequestFails(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(53)
	require.NoError(t, h.catalog.SetAccessTarget(h.ctx, adminID, "movie", -100777, model.ChatKindChannel))
	h.bot.Fail = func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.ApproveChatJoinRequestConfig); ok {
			return &tgbotapi.Error{Code: 400, Message: "Bad Request: HIDE_REQUESTER_MISSING"}
		}
		return nil
	}
	control := submitProof(t, h, buyer)

	outcome, err := h.approval.Approve(h.ctx, adminID, control, buyer, "movie", "p1")
	require.NoError(t, err)
	assert.Equal(t, service.AccessInviteLink, outcome.Access.Method)
	assert.Equal(t, int64(-100777), outcome.Subscription.ChatID)

	outbox := h.bot.Outbox(buyer)
	require.Len(t, outbox, 1)
	assert.Contains(t, outbox[0], "https://t.me/+fakeInvite")
}

func TestApproveSurvivesUndeliverableReceipt(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(54)
	control := submitProof(t, h, buyer)
	h.bot.Fail = func(c tgbotapi.Chattable) error {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == buyer {
			return &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
		}
		return nil
	}

	_, err := h.approval.Approve(h.ctx, adminID, control, buyer, "movie", "p1")
	require.NoError(t, err)
	assert.Len(t, h.activeSubs(), 1)
}

func TestRejectNotifiesBuyerOnly(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(55)
	control := submitProof(t, h, buyer)

	require.NoError(t, h.approval.Reject(h.ctx, adminID, control, buyer))

	assert.Empty(t, h.activeSubs())
	outbox := h.bot.Outbox(buyer)
	require.Len(t, outbox, 1)
	assert.Contains(t, outbox[0], "rejected")

	rec, err := h.approvalRepo.Get(h.ctx, control.ID())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionRejected, rec.Decision)
}

func TestCaptionsEscapeOperatorText(t *testing.T) {
	h := newHarness(t)
	const buyer = int64(56)
	require.NoError(t, h.catalog.UpsertCategory(h.ctx, adminID, "rd", "R&D <beta>", "https://t.me/+x?a=1&b=<2>"))
	require.NoError(t, h.catalog.UpsertPlan(h.ctx, adminID, &model.Plan{CategoryKey: "rd", ID: "m1", Label: "1 <mo>", Days: 30, Price: "9"}))

	control, err := h.approval.Submit(h.ctx, service.ProofRequest{
		BuyerID:       buyer,
		CategoryKey:   "rd",
		PlanID:        "m1",
		PaymentMethod: model.PaymentUPI,
	}, client.Proof{Kind: client.ProofPhoto, FileID: "photo-1"})
	require.NoError(t, err)

	_, err = h.approval.Approve(h.ctx, adminID, control, buyer, "rd", "m1")
	require.NoError(t, err)

	var caption string
	for _, c := range h.bot.Edits() {
		if e, ok := c.(tgbotapi.EditMessageCaptionConfig); ok && e.MessageID == control.MessageID {
			caption = e.Caption
			assert.Equal(t, tgbotapi.ModeHTML, e.ParseMode)
		}
	}
	assert.Contains(t, caption, "R&amp;D &lt;beta&gt; · 1 &lt;mo&gt;")
	assert.NotContains(t, caption, "<beta>")

	receipt := h.bot.Outbox(buyer)
	require.Len(t, receipt, 1)
	assert.Contains(t, receipt[0], "https://t.me/+x?a=1&amp;b=&lt;2&gt;")
}
