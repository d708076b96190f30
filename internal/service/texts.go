package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"vip-access-bot/internal/dto"
	"vip-access-bot/internal/model"
)

const (
	MenuBuy           = "💎 Buy VIP Membership"
	MenuSubscriptions = "📅 My Subscriptions"
	MenuSupport       = "🆘 Support"

	timeLayout = "2006-01-02 15:04 UTC"
)

const (
	textSessionExpired   = "⌛ Your session expired. Tap <b>" + MenuBuy + "</b> to start again."
	textStoreUnavailable = "⚠️ Something went wrong on our side. Please try again later."
	textNotFound         = "Not found."
	textAskProof         = "📸 Please send a screenshot or document of your payment."
	textProofSent        = "✅ Proof sent! Please wait for approval."
	textProofRetry       = "⚠️ We could not forward your proof. Please send it again."
	textCancelled        = "❌ Purchase cancelled."
	textAskPasscode      = "🔒 Please enter the passcode to continue."
	textWrongPasscode    = "❌ Wrong passcode. Try again."
	textNoCategories     = "No categories are available right now."
	textNoPaymentMethods = "No payment method is configured yet. Please contact support."
	textUseMenu          = "Please use the menu below."
	textRejected         = "❌ Your payment was rejected. Contact support if you think this is a mistake."
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(MenuBuy),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(MenuSubscriptions),
			tgbotapi.NewKeyboardButton(MenuSupport),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func welcomeText(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("👋 <b>Hello %s!</b>\n\nWelcome to the Premium Bot.", html.EscapeString(firstName))
}

// categoryKeyboard lists categories two per row.
func categoryKeyboard(categories []*model.Category) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range categories {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c.Name, dto.CategoryAction{CategoryKey: c.Key}.Encode()))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func planKeyboard(c *model.Category) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(c.Plans))
	for _, p := range c.Plans {
		label := fmt.Sprintf("%s · %s", p.Label, p.Price)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, dto.PlanAction{PlanID: p.ID}.Encode()),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// paymentMethods returns the methods that have payment details configured.
func paymentMethods(s *model.Settings) []model.PaymentMethod {
	var out []model.PaymentMethod
	if s.UPIID != "" {
		out = append(out, model.PaymentUPI)
	}
	if s.PayPalLink != "" {
		out = append(out, model.PaymentPayPal)
	}
	if s.BankText != "" {
		out = append(out, model.PaymentBank)
	}
	return out
}

func paymentKeyboard(methods []model.PaymentMethod) tgbotapi.InlineKeyboardMarkup {
	labels := map[model.PaymentMethod]string{
		model.PaymentUPI:    "🇮🇳 Pay via UPI",
		model.PaymentPayPal: "🅿️ Pay via PayPal",
		model.PaymentBank:   "🏦 Bank transfer",
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(methods))
	for _, m := range methods {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(labels[m], dto.PayAction{Method: m}.Encode()),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func approvalKeyboard(buyerID int64, categoryKey, planID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Approve", dto.ApproveAction{BuyerID: buyerID, CategoryKey: categoryKey, PlanID: planID}.Encode()),
		tgbotapi.NewInlineKeyboardButtonData("❌ Reject", dto.RejectAction{BuyerID: buyerID}.Encode()),
	))
}

func selectedPlanText(c *model.Category, p *model.Plan) string {
	return fmt.Sprintf("💎 <b>Selected:</b> %s\n📦 <b>Plan:</b> %s (%d days)\n💰 <b>Price:</b> %s\n\nChoose a payment method:",
		html.EscapeString(c.Name), html.EscapeString(p.Label), p.Days, html.EscapeString(p.Price))
}

func buyerLabel(id int64, username, firstName string) string {
	var b strings.Builder
	if firstName != "" {
		b.WriteString(html.EscapeString(firstName))
		b.WriteString(" ")
	}
	if username != "" {
		fmt.Fprintf(&b, "(@%s) ", html.EscapeString(username))
	}
	fmt.Fprintf(&b, "<code>%d</code>", id)
	return b.String()
}

func proofCaption(buyer string, c *model.Category, p *model.Plan, method model.PaymentMethod) string {
	return fmt.Sprintf("🔔 <b>New proof!</b>\nBuyer: %s\nCategory: %s\nPlan: %s (%d days, %s)\nMethod: %s",
		buyer, html.EscapeString(c.Name), html.EscapeString(p.Label), p.Days, html.EscapeString(p.Price), method)
}

func receiptText(buyer string, c *model.Category, p *model.Plan, sub *model.Subscription, access AccessResult) string {
	var b strings.Builder
	b.WriteString("✅ <b>Approved!</b>\n\n")
	fmt.Fprintf(&b, "👤 Buyer: %s\n", buyer)
	fmt.Fprintf(&b, "📦 %s · %s\n", html.EscapeString(c.Name), html.EscapeString(p.Label))
	fmt.Fprintf(&b, "🗓 Purchased: %s\n", sub.PurchasedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "⏳ Duration: %d days\n", p.Days)
	fmt.Fprintf(&b, "⌛ Expires: %s\n\n", sub.ExpiresAt.UTC().Format(timeLayout))

	switch access.Method {
	case AccessDirect:
		b.WriteString("🔓 Your join request was approved. Open the chat to start.")
	case AccessInviteLink:
		fmt.Fprintf(&b, "🔗 Your personal invite link (single use): %s", html.EscapeString(access.Link))
	case AccessStaticLink:
		fmt.Fprintf(&b, "🔗 Join: %s", html.EscapeString(access.Link))
	default:
		b.WriteString("🔗 Access will be sent to you by the admin shortly.")
	}
	return b.String()
}

func approvedCaption(at time.Time, buyer string, c *model.Category, p *model.Plan, method AccessMethod) string {
	return fmt.Sprintf("✅ <b>Approved</b> at %s\nBuyer: %s\n%s · %s\nAccess: %s",
		at.Format(timeLayout), buyer, html.EscapeString(c.Name), html.EscapeString(p.Label), method)
}

func rejectedCaption(at time.Time, buyerID int64) string {
	return fmt.Sprintf("❌ <b>Rejected</b> at %s\nBuyer: <code>%d</code>", at.Format(timeLayout), buyerID)
}

func reminderText(name string, days int, expiresAt time.Time) string {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("⏰ Your <b>%s</b> subscription expires in %d %s (%s). Tap <b>%s</b> to renew.",
		html.EscapeString(name), days, unit, expiresAt.UTC().Format(timeLayout), MenuBuy)
}

func expiredText(name string) string {
	return fmt.Sprintf("⌛ Your <b>%s</b> subscription has expired and access was removed. Tap <b>%s</b> to buy again.",
		html.EscapeString(name), MenuBuy)
}

func subscriptionsText(subs []*model.Subscription, settings *model.Settings, now time.Time) string {
	if len(subs) == 0 {
		return "You have no active subscriptions."
	}
	var b strings.Builder
	b.WriteString("📅 <b>Your subscriptions</b>\n")
	for _, sub := range subs {
		name := sub.CategoryKey
		if settings != nil {
			if c, ok := settings.Categories[sub.CategoryKey]; ok {
				name = c.Name
			}
		}
		fmt.Fprintf(&b, "\n• %s: expires %s (%d days left)", html.EscapeString(name),
			sub.ExpiresAt.UTC().Format(timeLayout), max(remainingDays(sub.ExpiresAt, now), 0))
	}
	return b.String()
}
