package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"html"
	"slices"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/dto"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
)

type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventSelection
	EventProof
	EventOther
)

// Event is one inbound buyer update.
type Event struct {
	Kind      EventKind
	BuyerID   int64
	ChatID    int64
	Username  string
	FirstName string

	// Text is the message text, or the command name without the slash.
	Text string
	Args string

	Action     dto.Action
	CallbackID string
	// MessageID is the message holding the activated inline keyboard.
	MessageID int

	Proof client.Proof
}

type ConversationService interface {
	Handle(ctx context.Context, ev Event) error
}

type conversationServiceImpl struct {
	passcode    string
	supportText string
	now         func() time.Time
	log         zerolog.Logger
	tg          client.TelegramClient
	sessions    repository.SessionRepository
	catalog     CatalogService
	approval    ApprovalService
	users       UserService

	verified sync.Map
}

func NewConversationService(
	passcode string,
	supportText string,
	now func() time.Time,
	log zerolog.Logger,
	tg client.TelegramClient,
	sessions repository.SessionRepository,
	catalog CatalogService,
	approval ApprovalService,
	users UserService,
) ConversationService {
	if now == nil {
		now = time.Now
	}
	return &conversationServiceImpl{
		passcode:    passcode,
		supportText: supportText,
		now:         now,
		log:         log.With().Str("component", "conversation").Logger(),
		tg:          tg,
		sessions:    sessions,
		catalog:     catalog,
		approval:    approval,
		users:       users,
	}
}

// Handle advances the buyer's conversation by one event. Callers must not
// run two events of the same buyer concurrently.
func (s *conversationServiceImpl) Handle(ctx context.Context, ev Event) error {
	err := s.handle(ctx, ev)
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrSessionExpired):
		s.clear(ctx, ev.BuyerID)
		s.reply(ev, textSessionExpired, nil)
		return nil
	case errors.Is(err, ErrStoreUnavailable):
		s.reply(ev, textStoreUnavailable, nil)
	}
	return err
}

func (s *conversationServiceImpl) handle(ctx context.Context, ev Event) error {
	if ev.Kind == EventCommand && ev.Text == "start" {
		return s.start(ctx, ev)
	}

	sess, err := s.sessions.Get(ctx, ev.BuyerID)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if sess == nil {
		sess = &model.PendingPurchase{BuyerID: ev.BuyerID, State: model.StateIdle}
	}

	if s.passcode != "" {
		ok, err := s.isVerified(ctx, ev.BuyerID)
		if err != nil {
			return err
		}
		if !ok {
			return s.checkPasscode(ctx, ev, sess)
		}
	}

	switch ev.Kind {
	case EventCommand:
		switch ev.Text {
		case "buy":
			return s.showCategories(ctx, ev)
		case "cancel":
			return s.cancel(ctx, ev)
		}
		s.reply(ev, textUseMenu, mainMenuKeyboard())
		return nil

	case EventText:
		switch strings.TrimSpace(ev.Text) {
		case MenuBuy:
			return s.showCategories(ctx, ev)
		case MenuSupport:
			s.reply(ev, s.supportText, nil)
			return nil
		case MenuSubscriptions:
			return s.showSubscriptions(ctx, ev)
		}
		if sess.State == model.StateAwaitingProof {
			s.reply(ev, textAskProof, nil)
			return nil
		}
		s.reply(ev, textUseMenu, mainMenuKeyboard())
		return nil

	case EventSelection:
		return s.selection(ctx, ev, sess)

	case EventProof:
		return s.proof(ctx, ev, sess)
	}

	if sess.State == model.StateAwaitingProof {
		s.reply(ev, textAskProof, nil)
	}
	return nil
}

func (s *conversationServiceImpl) start(ctx context.Context, ev Event) error {
	err := s.users.Register(ctx, &model.User{ID: ev.BuyerID, Username: ev.Username, FirstName: ev.FirstName})
	if err != nil {
		return err
	}

	if s.passcode != "" {
		ok, err := s.isVerified(ctx, ev.BuyerID)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.save(ctx, &model.PendingPurchase{BuyerID: ev.BuyerID, State: model.StateAwaitingPasscode}); err != nil {
				return err
			}
			s.reply(ev, textAskPasscode, nil)
			return nil
		}
	}

	if err := s.save(ctx, &model.PendingPurchase{BuyerID: ev.BuyerID, State: model.StateMainMenu}); err != nil {
		return err
	}
	s.reply(ev, welcomeText(ev.FirstName), mainMenuKeyboard())
	return nil
}

func (s *conversationServiceImpl) isVerified(ctx context.Context, buyerID int64) (bool, error) {
	if _, ok := s.verified.Load(buyerID); ok {
		return true, nil
	}
	ok, err := s.users.IsVerified(ctx, buyerID)
	if err != nil {
		return false, err
	}
	if ok {
		s.verified.Store(buyerID, struct{}{})
	}
	return ok, nil
}

func (s *conversationServiceImpl) checkPasscode(ctx context.Context, ev Event, sess *model.PendingPurchase) error {
	if ev.Kind == EventSelection {
		s.answer(ev, textAskPasscode, true)
		return nil
	}
	if ev.Kind != EventText || sess.State != model.StateAwaitingPasscode {
		if err := s.save(ctx, &model.PendingPurchase{BuyerID: ev.BuyerID, State: model.StateAwaitingPasscode}); err != nil {
			return err
		}
		s.reply(ev, textAskPasscode, nil)
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(ev.Text)), []byte(s.passcode)) != 1 {
		s.reply(ev, textWrongPasscode, nil)
		return nil
	}

	if err := s.users.Register(ctx, &model.User{ID: ev.BuyerID, Username: ev.Username, FirstName: ev.FirstName}); err != nil {
		return err
	}
	if err := s.users.Verify(ctx, ev.BuyerID); err != nil {
		return err
	}
	s.verified.Store(ev.BuyerID, struct{}{})

	if err := s.save(ctx, &model.PendingPurchase{BuyerID: ev.BuyerID, State: model.StateMainMenu}); err != nil {
		return err
	}
	s.reply(ev, welcomeText(ev.FirstName), mainMenuKeyboard())
	return nil
}

func (s *conversationServiceImpl) showCategories(ctx context.Context, ev Event) error {
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		return err
	}

	categories := settings.SortedCategories()
	if len(categories) == 0 {
		s.reply(ev, textNoCategories, nil)
		return nil
	}

	next := &model.PendingPurchase{BuyerID: ev.BuyerID, State: model.StateSelectingCategory}
	if err := s.save(ctx, next); err != nil {
		return err
	}
	s.reply(ev, "✨ <b>VIP Access Hub</b> ✨\nSelect a category:", categoryKeyboard(categories))
	return nil
}

func (s *conversationServiceImpl) showSubscriptions(ctx context.Context, ev Event) error {
	subs, err := s.users.ActiveSubscriptions(ctx, ev.BuyerID)
	if err != nil {
		return err
	}
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		// names fall back to category keys
		s.log.Warn().Err(err).Int64("buyer_id", ev.BuyerID).Msg("catalog unavailable for subscription list")
	}
	s.reply(ev, subscriptionsText(subs, settings, s.now()), nil)
	return nil
}

func (s *conversationServiceImpl) cancel(ctx context.Context, ev Event) error {
	if err := s.sessions.Delete(ctx, ev.BuyerID); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	s.reply(ev, textCancelled, mainMenuKeyboard())
	return nil
}

func (s *conversationServiceImpl) selection(ctx context.Context, ev Event, sess *model.PendingPurchase) error {
	switch a := ev.Action.(type) {
	case dto.CategoryAction:
		if sess.State != model.StateSelectingCategory {
			s.answer(ev, "", false)
			return ErrSessionExpired
		}
		return s.selectCategory(ctx, ev, sess, a.CategoryKey)

	case dto.PlanAction:
		if sess.State != model.StateSelectingPlan || sess.CategoryKey == "" {
			s.answer(ev, "", false)
			return ErrSessionExpired
		}
		return s.selectPlan(ctx, ev, sess, a.PlanID)

	case dto.PayAction:
		if sess.State != model.StateAwaitingPaymentMethod || !sess.Complete() {
			s.answer(ev, "", false)
			return ErrSessionExpired
		}
		return s.selectPayment(ctx, ev, sess, a.Method)
	}

	s.answer(ev, textNotFound, false)
	return nil
}

func (s *conversationServiceImpl) selectCategory(ctx context.Context, ev Event, sess *model.PendingPurchase, key string) error {
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		s.answer(ev, "", false)
		return err
	}

	cat, ok := settings.Categories[key]
	if !ok {
		s.answer(ev, "Category not found.", true)
		return nil
	}
	if len(cat.Plans) == 0 {
		s.answer(ev, "This category has no plans yet.", true)
		return nil
	}

	sess.CategoryKey = cat.Key
	sess.PlanID = ""
	sess.PaymentMethod = ""
	sess.State = model.StateSelectingPlan
	if err := s.save(ctx, sess); err != nil {
		s.answer(ev, "", false)
		return err
	}

	s.answer(ev, "", false)
	s.show(ev, "💎 <b>"+html.EscapeString(cat.Name)+"</b>\nChoose a plan:", planKeyboard(cat))
	return nil
}

func (s *conversationServiceImpl) selectPlan(ctx context.Context, ev Event, sess *model.PendingPurchase, planID string) error {
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		s.answer(ev, "", false)
		return err
	}

	cat, plan := settings.Lookup(sess.CategoryKey, planID)
	if cat == nil {
		s.answer(ev, "", false)
		return ErrSessionExpired
	}
	if plan == nil {
		s.answer(ev, "Plan not found.", true)
		return nil
	}

	methods := paymentMethods(settings)
	if len(methods) == 0 {
		s.answer(ev, "", false)
		s.reply(ev, textNoPaymentMethods, nil)
		return nil
	}

	sess.PlanID = plan.ID
	sess.State = model.StateAwaitingPaymentMethod
	if err := s.save(ctx, sess); err != nil {
		s.answer(ev, "", false)
		return err
	}

	s.answer(ev, "", false)
	s.show(ev, selectedPlanText(cat, plan), paymentKeyboard(methods))
	return nil
}

func (s *conversationServiceImpl) selectPayment(ctx context.Context, ev Event, sess *model.PendingPurchase, method model.PaymentMethod) error {
	settings, err := s.catalog.Settings(ctx)
	if err != nil {
		s.answer(ev, "", false)
		return err
	}

	cat, plan := settings.Lookup(sess.CategoryKey, sess.PlanID)
	if cat == nil || plan == nil {
		s.answer(ev, "", false)
		return ErrSessionExpired
	}
	if !method.Valid() || !slices.Contains(paymentMethods(settings), method) {
		s.answer(ev, textNotFound, false)
		return nil
	}

	sess.PaymentMethod = method
	sess.State = model.StateAwaitingProof
	if err := s.save(ctx, sess); err != nil {
		s.answer(ev, "", false)
		return err
	}
	s.answer(ev, "", false)

	switch method {
	case model.PaymentUPI:
		s.sendUPI(ev, settings, plan)
	case model.PaymentPayPal:
		s.reply(ev, "🅿️ Pay <b>"+html.EscapeString(plan.Price)+"</b> at "+html.EscapeString(settings.PayPalLink)+"\n\n"+textAskProof, nil)
	case model.PaymentBank:
		s.reply(ev, "🏦 Transfer <b>"+html.EscapeString(plan.Price)+"</b> to:\n"+html.EscapeString(settings.BankText)+"\n\n"+textAskProof, nil)
	}
	return nil
}

func (s *conversationServiceImpl) sendUPI(ev Event, settings *model.Settings, plan *model.Plan) {
	caption := "🇮🇳 Scan to pay <b>" + html.EscapeString(plan.Price) + "</b>\nUPI: <code>" + html.EscapeString(settings.UPIID) + "</code>\n\n" + textAskProof

	uri, err := BuildUPIURI(settings.UPIID, settings.PayeeName, plan.Price)
	if err == nil {
		var png []byte
		if png, err = RenderQR(uri); err == nil {
			if _, err := s.tg.SendPhoto(ev.ChatID, "qr.png", png, caption, nil); err != nil {
				s.log.Warn().Err(err).Int64("buyer_id", ev.BuyerID).Msg("send qr failed")
			}
			return
		}
	}

	s.log.Warn().Err(err).Msg("qr unavailable, sending upi id as text")
	s.reply(ev, caption, nil)
}

func (s *conversationServiceImpl) proof(ctx context.Context, ev Event, sess *model.PendingPurchase) error {
	if sess.State != model.StateAwaitingProof || !sess.Complete() || !sess.PaymentMethod.Valid() {
		return ErrSessionExpired
	}

	req := ProofRequest{
		BuyerID:       ev.BuyerID,
		Username:      ev.Username,
		FirstName:     ev.FirstName,
		CategoryKey:   sess.CategoryKey,
		PlanID:        sess.PlanID,
		PaymentMethod: sess.PaymentMethod,
	}

	_, err := s.approval.Submit(ctx, req, ev.Proof)
	switch {
	case errors.Is(err, ErrCatalogMismatch):
		s.clear(ctx, ev.BuyerID)
		s.reply(ev, "This plan is no longer available. Please choose again.", mainMenuKeyboard())
		return nil
	case err != nil:
		// keep the session so the buyer can resend
		s.log.Error().Err(err).Int64("buyer_id", ev.BuyerID).Msg("submit proof failed")
		s.reply(ev, textProofRetry, nil)
		return nil
	}

	s.clear(ctx, ev.BuyerID)
	s.reply(ev, textProofSent, mainMenuKeyboard())
	return nil
}

func (s *conversationServiceImpl) save(ctx context.Context, sess *model.PendingPurchase) error {
	if err := s.sessions.Save(ctx, sess); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *conversationServiceImpl) clear(ctx context.Context, buyerID int64) {
	if err := s.sessions.Delete(ctx, buyerID); err != nil {
		s.log.Warn().Err(err).Int64("buyer_id", buyerID).Msg("clear session failed")
	}
}

func (s *conversationServiceImpl) reply(ev Event, text string, markup any) {
	if _, err := s.tg.SendText(ev.ChatID, text, markup); err != nil {
		s.log.Warn().Err(err).Int64("buyer_id", ev.BuyerID).Msg("reply failed")
	}
}

// show replaces the keyboard message in place, or sends a new one.
func (s *conversationServiceImpl) show(ev Event, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if ev.MessageID != 0 {
		if err := s.tg.EditText(ev.ChatID, ev.MessageID, text, &markup); err == nil {
			return
		}
	}
	s.reply(ev, text, markup)
}

func (s *conversationServiceImpl) answer(ev Event, text string, alert bool) {
	if ev.CallbackID == "" {
		return
	}
	if err := s.tg.AnswerCallback(ev.CallbackID, text, alert); err != nil {
		s.log.Debug().Err(err).Msg("answer callback failed")
	}
}
