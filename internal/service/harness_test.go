package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/client/clienttest"
	"vip-access-bot/internal/config"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
	"vip-access-bot/internal/service"
)

const adminID = int64(1000)

type harness struct {
	t   *testing.T
	ctx context.Context
	now time.Time

	db  *gorm.DB
	bot *clienttest.FakeBot
	tg  client.TelegramClient

	sessions     repository.SessionRepository
	catalogRepo  repository.CatalogRepository
	subRepo      repository.SubscriptionRepository
	approvalRepo repository.ApprovalRepository
	userRepo     repository.UserRepository

	catalog      service.CatalogService
	access       service.AccessService
	users        service.UserService
	approval     service.ApprovalService
	conversation service.ConversationService
	reconciler   service.ReconcilerService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithPasscode(t, "")
}

func newHarnessWithPasscode(t *testing.T, passcode string) *harness {
	t.Helper()

	h := &harness{
		t:   t,
		ctx: context.Background(),
		now: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		db:  clienttest.NewTestDB(t),
		bot: clienttest.NewFakeBot(),
	}
	clock := func() time.Time { return h.now }
	log := zerolog.Nop()
	retry := service.RetryPolicy{Attempts: 1, Timeout: 5 * time.Second}

	h.tg = client.NewTelegramClient(h.bot)
	h.sessions = repository.NewMemorySessionRepository(time.Hour, clock)
	h.catalogRepo = repository.NewCatalogRepository(h.db)
	h.subRepo = repository.NewSubscriptionRepository(h.db)
	h.approvalRepo = repository.NewApprovalRepository(h.db)
	h.userRepo = repository.NewUserRepository(h.db)

	h.catalog = service.NewCatalogService(adminID, retry, h.catalogRepo)
	h.access = service.NewAccessService(h.tg, 24*time.Hour, clock, log)
	h.users = service.NewUserService(adminID, retry, log, h.tg, h.userRepo, h.subRepo)
	h.approval = service.NewApprovalService(h.db, adminID, retry, clock, log, h.tg,
		h.catalog, h.access, h.approvalRepo, h.subRepo, h.userRepo)
	h.conversation = service.NewConversationService(passcode, "Write to @support.", clock, log, h.tg,
		h.sessions, h.catalog, h.approval, h.users)
	h.reconciler = service.NewReconcilerService(config.Reconciler{
		Interval:     time.Minute,
		PassTimeout:  time.Minute,
		ReminderDays: []int{1, 2},
	}, retry, clock, log, h.tg, h.catalog, h.access, h.subRepo)

	return h
}

func (h *harness) send(ev service.Event) {
	h.t.Helper()
	if ev.ChatID == 0 {
		ev.ChatID = ev.BuyerID
	}
	require.NoError(h.t, h.conversation.Handle(h.ctx, ev))
}

func (h *harness) session(buyerID int64) *model.PendingPurchase {
	h.t.Helper()
	sess, err := h.sessions.Get(h.ctx, buyerID)
	require.NoError(h.t, err)
	return sess
}

func (h *harness) activeSubs() []*model.Subscription {
	h.t.Helper()
	var out []*model.Subscription
	for sub, err := range h.subRepo.ListActive(h.ctx) {
		require.NoError(h.t, err)
		out = append(out, sub)
	}
	return out
}

func (h *harness) subscription(id string) *model.Subscription {
	h.t.Helper()
	var sub model.Subscription
	require.NoError(h.t, h.db.First(&sub, "id = ?", id).Error)
	return &sub
}

func (h *harness) insertSub(id string, buyerID int64, expiresAt time.Time) *model.Subscription {
	h.t.Helper()
	sub := &model.Subscription{
		ID:          id,
		BuyerID:     buyerID,
		CategoryKey: "movie",
		PlanID:      "p1",
		ChatID:      -100500,
		ApprovalID:  "ctl-" + id,
		PurchasedAt: expiresAt.AddDate(0, 0, -30),
		ExpiresAt:   expiresAt,
		Status:      model.SubscriptionActive,
	}
	require.NoError(h.t, h.subRepo.Insert(h.ctx, nil, sub))
	return sub
}

// purchase walks a buyer through the whole conversation up to a submitted proof.
func (h *harness) purchase(buyerID int64, categoryKey, planID string) {
	h.t.Helper()
	h.send(service.Event{Kind: service.EventCommand, Text: "start", BuyerID: buyerID, FirstName: "Ann", Username: "ann"})
	h.send(service.Event{Kind: service.EventText, Text: service.MenuBuy, BuyerID: buyerID})
	h.send(selection(buyerID, dtoCategory(categoryKey)))
	h.send(selection(buyerID, dtoPlan(planID)))
	h.send(selection(buyerID, dtoPay(model.PaymentUPI)))
	h.send(service.Event{Kind: service.EventProof, BuyerID: buyerID, Proof: client.Proof{Kind: client.ProofPhoto, FileID: "proof-file"}})
}
