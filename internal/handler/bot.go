package handler

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/dto"
	"vip-access-bot/internal/middleware"
	"vip-access-bot/internal/service"
)

const (
	answerNotFound      = "Not found."
	answerUnauthorized  = "⛔ Unauthorized."
	answerProcessed     = "Already processed."
	answerMismatch      = "Category or plan no longer exists."
	answerTryLater      = "⚠️ Try again later."
	answerApproved      = "✅ Approved"
	answerApprovedNoAcc = "✅ Approved, but access could not be granted. Send the buyer a link manually."
	answerRejected      = "❌ Rejected"
)

type BotHandler struct {
	log          zerolog.Logger
	tg           client.TelegramClient
	conversation service.ConversationService
	approval     service.ApprovalService
	admin        middleware.UpdateHandler
	adminCmds    map[string]struct{}
}

func NewBotHandler(
	adminID int64,
	log zerolog.Logger,
	tg client.TelegramClient,
	conversation service.ConversationService,
	approval service.ApprovalService,
	admin *AdminHandler,
) *BotHandler {
	h := &BotHandler{
		log:          log.With().Str("component", "bot").Logger(),
		tg:           tg,
		conversation: conversation,
		approval:     approval,
		adminCmds:    make(map[string]struct{}),
	}
	for _, cmd := range admin.Commands() {
		h.adminCmds[cmd] = struct{}{}
	}
	h.admin = middleware.Chain(admin.Handle, middleware.AdminOnly(adminID, h.denyCommand))
	return h
}

// HandleUpdate routes one update. It is safe to call concurrently for
// different senders.
func (h *BotHandler) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	switch {
	case u.CallbackQuery != nil:
		return h.onCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		if _, ok := h.adminCmds[u.Message.Command()]; ok && u.Message.IsCommand() {
			return h.admin(ctx, u)
		}
		return h.onMessage(ctx, u.Message)
	}
	return nil
}

func (h *BotHandler) onMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return nil
	}

	return h.conversation.Handle(ctx, messageEvent(msg))
}

func messageEvent(msg *tgbotapi.Message) service.Event {
	ev := service.Event{
		BuyerID:   msg.From.ID,
		ChatID:    msg.Chat.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
	}

	switch {
	case msg.IsCommand():
		ev.Kind = service.EventCommand
		ev.Text = msg.Command()
		ev.Args = msg.CommandArguments()
	case len(msg.Photo) > 0:
		ev.Kind = service.EventProof
		// sizes are ordered smallest first
		ev.Proof = client.Proof{Kind: client.ProofPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Document != nil:
		ev.Kind = service.EventProof
		ev.Proof = client.Proof{Kind: client.ProofDocument, FileID: msg.Document.FileID}
	case msg.Text != "":
		ev.Kind = service.EventText
		ev.Text = msg.Text
	default:
		ev.Kind = service.EventOther
	}
	return ev
}

func (h *BotHandler) onCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	action, err := dto.Decode(cb.Data)
	if err != nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		h.log.Debug().Err(err).Str("data", cb.Data).Msg("unusable callback")
		h.answer(cb.ID, answerNotFound, false)
		return nil
	}

	control := service.Control{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.MessageID}

	switch a := action.(type) {
	case dto.ApproveAction:
		outcome, err := h.approval.Approve(ctx, cb.From.ID, control, a.BuyerID, a.CategoryKey, a.PlanID)
		if err != nil {
			return h.answerDecisionError(cb.ID, err)
		}
		if outcome.AccessErr != nil {
			h.answer(cb.ID, answerApprovedNoAcc, true)
			return nil
		}
		h.answer(cb.ID, answerApproved, false)
		return nil

	case dto.RejectAction:
		if err := h.approval.Reject(ctx, cb.From.ID, control, a.BuyerID); err != nil {
			return h.answerDecisionError(cb.ID, err)
		}
		h.answer(cb.ID, answerRejected, false)
		return nil
	}

	return h.conversation.Handle(ctx, service.Event{
		Kind:       service.EventSelection,
		BuyerID:    cb.From.ID,
		ChatID:     cb.Message.Chat.ID,
		Username:   cb.From.UserName,
		FirstName:  cb.From.FirstName,
		Action:     action,
		CallbackID: cb.ID,
		MessageID:  cb.Message.MessageID,
	})
}

func (h *BotHandler) answerDecisionError(callbackID string, err error) error {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		h.answer(callbackID, answerUnauthorized, true)
		return nil
	case errors.Is(err, service.ErrAlreadyProcessed):
		text := answerProcessed
		var processed *service.ProcessedError
		if errors.As(err, &processed) {
			text = fmt.Sprintf("Already %s.", processed.Decision)
		}
		h.answer(callbackID, text, false)
		return nil
	case errors.Is(err, service.ErrCatalogMismatch):
		h.answer(callbackID, answerMismatch, true)
		return nil
	}
	h.answer(callbackID, answerTryLater, true)
	return err
}

func (h *BotHandler) denyCommand(ctx context.Context, u tgbotapi.Update) error {
	if u.Message != nil && u.Message.Chat != nil {
		if _, err := h.tg.SendText(u.Message.Chat.ID, answerUnauthorized, nil); err != nil {
			h.log.Debug().Err(err).Msg("deny reply failed")
		}
	}
	return nil
}

func (h *BotHandler) answer(callbackID, text string, alert bool) {
	if err := h.tg.AnswerCallback(callbackID, text, alert); err != nil {
		h.log.Debug().Err(err).Msg("answer callback failed")
	}
}
