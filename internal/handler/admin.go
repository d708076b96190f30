package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"vip-access-bot/internal/client"
	"vip-access-bot/internal/model"
	"vip-access-bot/internal/repository"
	"vip-access-bot/internal/service"
)

const adminHelp = `<b>Admin commands</b>
/catalog
/addcat key | name | link
/addplan category | id | label | days | price [| chatID]
/delcat key
/delplan category id
/settarget category chatID channel|group
/setupi id
/setpayee name
/setpaypal link
/setbank text
/broadcast text
/stats`

type adminCommand func(ctx context.Context, senderID, chatID int64, args string) error

// AdminHandler serves the operator's catalog and maintenance commands.
type AdminHandler struct {
	log      zerolog.Logger
	tg       client.TelegramClient
	catalog  service.CatalogService
	users    service.UserService
	commands map[string]adminCommand

	background sync.WaitGroup
}

func NewAdminHandler(
	log zerolog.Logger,
	tg client.TelegramClient,
	catalog service.CatalogService,
	users service.UserService,
) *AdminHandler {
	h := &AdminHandler{
		log:     log.With().Str("component", "admin").Logger(),
		tg:      tg,
		catalog: catalog,
		users:   users,
	}
	h.commands = map[string]adminCommand{
		"admin":     h.help,
		"catalog":   h.showCatalog,
		"addcat":    h.addCategory,
		"addplan":   h.addPlan,
		"delcat":    h.deleteCategory,
		"delplan":   h.deletePlan,
		"settarget": h.setTarget,
		"setupi":    h.paymentField(repository.PaymentFieldUPIID),
		"setpayee":  h.paymentField(repository.PaymentFieldPayeeName),
		"setpaypal": h.paymentField(repository.PaymentFieldPayPalLink),
		"setbank":   h.paymentField(repository.PaymentFieldBankText),
		"broadcast": h.broadcast,
		"stats":     h.stats,
	}
	return h
}

func (h *AdminHandler) Commands() []string {
	out := make([]string, 0, len(h.commands))
	for name := range h.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *AdminHandler) Handle(ctx context.Context, u tgbotapi.Update) error {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}

	cmd, ok := h.commands[msg.Command()]
	if !ok {
		return nil
	}

	err := cmd(ctx, msg.From.ID, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()))
	if err == nil {
		return nil
	}
	return h.fail(msg.Chat.ID, err)
}

func (h *AdminHandler) fail(chatID int64, err error) error {
	var text string
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		text = "❌ " + html.EscapeString(err.Error())
	case errors.Is(err, service.ErrNotFound):
		text = "❌ Not found."
	case errors.Is(err, service.ErrUnauthorized):
		text = answerUnauthorized
	default:
		h.reply(chatID, answerTryLater)
		return err
	}
	h.reply(chatID, text)
	return nil
}

func (h *AdminHandler) reply(chatID int64, text string) {
	if _, err := h.tg.SendText(chatID, text, nil); err != nil {
		h.log.Warn().Err(err).Msg("admin reply failed")
	}
}

func usage(format string) error {
	return fmt.Errorf("%w: usage: %s", service.ErrInvalidInput, format)
}

func splitPipe(args string) []string {
	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (h *AdminHandler) help(_ context.Context, _, chatID int64, _ string) error {
	h.reply(chatID, adminHelp)
	return nil
}

func (h *AdminHandler) showCatalog(ctx context.Context, _, chatID int64, _ string) error {
	settings, err := h.catalog.Settings(ctx)
	if err != nil {
		return err
	}
	h.reply(chatID, catalogText(settings))
	return nil
}

func catalogText(s *model.Settings) string {
	var b strings.Builder
	b.WriteString("<b>Payment</b>\n")
	fmt.Fprintf(&b, "UPI: %s\nPayee: %s\nPayPal: %s\nBank: %s\n",
		orDash(s.UPIID), orDash(s.PayeeName), orDash(s.PayPalLink), orDash(s.BankText))

	b.WriteString("\n<b>Catalog</b>")
	for _, c := range s.SortedCategories() {
		fmt.Fprintf(&b, "\n\n<code>%s</code> %s\nlink: %s", c.Key, html.EscapeString(c.Name), orDash(c.Link))
		if c.ChatID != 0 {
			fmt.Fprintf(&b, "\ntarget: <code>%d</code> (%s)", c.ChatID, c.ChatKind)
		}
		for _, p := range c.Plans {
			fmt.Fprintf(&b, "\n  • <code>%s</code> %s, %d days, %s", p.ID, html.EscapeString(p.Label), p.Days, html.EscapeString(p.Price))
			if p.ChatID != 0 {
				fmt.Fprintf(&b, ", chat <code>%d</code>", p.ChatID)
			}
		}
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return html.EscapeString(s)
}

func (h *AdminHandler) addCategory(ctx context.Context, senderID, chatID int64, args string) error {
	parts := splitPipe(args)
	if len(parts) < 2 || len(parts) > 3 {
		return usage("/addcat key | name | link")
	}
	link := ""
	if len(parts) == 3 {
		link = parts[2]
	}

	if err := h.catalog.UpsertCategory(ctx, senderID, parts[0], parts[1], link); err != nil {
		return err
	}
	h.reply(chatID, fmt.Sprintf("✅ Category <code>%s</code> saved.", html.EscapeString(parts[0])))
	return nil
}

func (h *AdminHandler) addPlan(ctx context.Context, senderID, chatID int64, args string) error {
	const format = "/addplan category | id | label | days | price [| chatID]"

	parts := splitPipe(args)
	if len(parts) < 5 || len(parts) > 6 {
		return usage(format)
	}
	days, err := strconv.Atoi(parts[3])
	if err != nil {
		return usage(format)
	}
	plan := &model.Plan{
		CategoryKey: parts[0],
		ID:          parts[1],
		Label:       parts[2],
		Days:        days,
		Price:       parts[4],
	}
	if len(parts) == 6 && parts[5] != "" {
		if plan.ChatID, err = strconv.ParseInt(parts[5], 10, 64); err != nil {
			return usage(format)
		}
	}

	if err := h.catalog.UpsertPlan(ctx, senderID, plan); err != nil {
		return err
	}
	h.reply(chatID, fmt.Sprintf("✅ Plan <code>%s</code> saved in <code>%s</code>.", html.EscapeString(plan.ID), html.EscapeString(plan.CategoryKey)))
	return nil
}

func (h *AdminHandler) deleteCategory(ctx context.Context, senderID, chatID int64, args string) error {
	if args == "" || strings.ContainsAny(args, " \t") {
		return usage("/delcat key")
	}
	if err := h.catalog.DeleteCategory(ctx, senderID, args); err != nil {
		return err
	}
	h.reply(chatID, "🗑 Category deleted.")
	return nil
}

func (h *AdminHandler) deletePlan(ctx context.Context, senderID, chatID int64, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return usage("/delplan category id")
	}
	if err := h.catalog.DeletePlan(ctx, senderID, fields[0], fields[1]); err != nil {
		return err
	}
	h.reply(chatID, "🗑 Plan deleted.")
	return nil
}

func (h *AdminHandler) setTarget(ctx context.Context, senderID, chatID int64, args string) error {
	const format = "/settarget category chatID channel|group"

	fields := strings.Fields(args)
	if len(fields) != 3 {
		return usage(format)
	}
	target, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return usage(format)
	}

	if err := h.catalog.SetAccessTarget(ctx, senderID, fields[0], target, model.ChatKind(fields[2])); err != nil {
		return err
	}
	h.reply(chatID, "✅ Access target saved.")
	return nil
}

func (h *AdminHandler) paymentField(field repository.PaymentField) adminCommand {
	return func(ctx context.Context, senderID, chatID int64, args string) error {
		if err := h.catalog.SetPaymentField(ctx, senderID, field, args); err != nil {
			return err
		}
		h.reply(chatID, "✅ Payment settings updated.")
		return nil
	}
}

// broadcast runs in the background; the admin gets the tally when it ends.
func (h *AdminHandler) broadcast(ctx context.Context, senderID, chatID int64, args string) error {
	if args == "" {
		return usage("/broadcast text")
	}

	h.reply(chatID, "📣 Broadcast started.")
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		report, err := h.users.Broadcast(context.WithoutCancel(ctx), senderID, args)
		if err != nil {
			h.log.Error().Err(err).Msg("broadcast aborted")
		}
		h.reply(chatID, fmt.Sprintf("📣 Broadcast finished: %d sent, %d failed.", report.Sent, report.Failed))
	}()
	return nil
}

// Wait blocks until running broadcasts have finished.
func (h *AdminHandler) Wait() {
	h.background.Wait()
}

func (h *AdminHandler) stats(ctx context.Context, senderID, chatID int64, _ string) error {
	stats, err := h.users.Stats(ctx, senderID)
	if err != nil {
		return err
	}
	h.reply(chatID, fmt.Sprintf("📊 <b>Stats</b>\nUsers: %d\nActive subscriptions: %d\nExpired subscriptions: %d",
		stats.Users, stats.Active, stats.Expired))
	return nil
}
