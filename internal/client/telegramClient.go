package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// BotAPI is the subset of *tgbotapi.BotAPI used by the bot.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type ProofKind string

const (
	ProofPhoto    ProofKind = "photo"
	ProofDocument ProofKind = "document"
)

// Proof references an uploaded payment screenshot or document by platform file id.
type Proof struct {
	Kind   ProofKind
	FileID string
}

type TelegramClient interface {
	SendText(chatID int64, text string, markup any) (int, error)
	SendPhoto(chatID int64, fileName string, data []byte, caption string, markup any) (int, error)
	SendProof(chatID int64, proof Proof, caption string, markup any) (int, error)
	EditText(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error
	EditCaption(chatID int64, messageID int, caption string) error
	AnswerCallback(callbackID, text string, alert bool) error

	ApproveJoinRequest(chatID, userID int64) error
	BanMember(chatID, userID int64) error
	UnbanMember(chatID, userID int64, onlyIfBanned bool) error
	CreateInviteLink(chatID int64, name string, expireAt time.Time, memberLimit int) (string, error)

	DeleteWebhook() error
}

type telegramClientImpl struct {
	bot BotAPI
}

// NewBotAPI connects to the Bot API with a bounded per-request timeout.
func NewBotAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{
		Timeout: timeout,
	})
	if err != nil {
		return nil, wrapPlatformError("getMe", err)
	}
	return bot, nil
}

// SetLogger routes the library's own polling messages through zerolog.
func SetLogger(log zerolog.Logger) {
	_ = tgbotapi.SetLogger(botLogger{log: log.With().Str("component", "tgbotapi").Logger()})
}

type botLogger struct {
	log zerolog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

func NewTelegramClient(bot BotAPI) TelegramClient {
	return &telegramClientImpl{
		bot: bot,
	}
}

func (c *telegramClientImpl) SendText(chatID int64, text string, markup any) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, wrapPlatformError("sendMessage", err)
	}
	return sent.MessageID, nil
}

func (c *telegramClientImpl) SendPhoto(chatID int64, fileName string, data []byte, caption string, markup any) (int, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  fileName,
		Bytes: data,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		photo.ReplyMarkup = markup
	}

	sent, err := c.bot.Send(photo)
	if err != nil {
		return 0, wrapPlatformError("sendPhoto", err)
	}
	return sent.MessageID, nil
}

func (c *telegramClientImpl) SendProof(chatID int64, proof Proof, caption string, markup any) (int, error) {
	var (
		sent tgbotapi.Message
		err  error
	)

	switch proof.Kind {
	case ProofPhoto:
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(proof.FileID))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			photo.ReplyMarkup = markup
		}
		sent, err = c.bot.Send(photo)
	case ProofDocument:
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(proof.FileID))
		doc.Caption = caption
		doc.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			doc.ReplyMarkup = markup
		}
		sent, err = c.bot.Send(doc)
	default:
		return 0, fmt.Errorf("unsupported proof kind %q", proof.Kind)
	}

	if err != nil {
		return 0, wrapPlatformError("sendProof", err)
	}
	return sent.MessageID, nil
}

func (c *telegramClientImpl) EditText(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	edit.ReplyMarkup = markup

	if _, err := c.bot.Send(edit); err != nil {
		return wrapPlatformError("editMessageText", err)
	}
	return nil
}

// EditCaption replaces the caption and drops the inline keyboard.
func (c *telegramClientImpl) EditCaption(chatID int64, messageID int, caption string) error {
	edit := tgbotapi.NewEditMessageCaption(chatID, messageID, caption)
	edit.ParseMode = tgbotapi.ModeHTML

	if _, err := c.bot.Send(edit); err != nil {
		return wrapPlatformError("editMessageCaption", err)
	}
	return nil
}

func (c *telegramClientImpl) AnswerCallback(callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert

	if _, err := c.bot.Request(cfg); err != nil {
		return wrapPlatformError("answerCallbackQuery", err)
	}
	return nil
}

func (c *telegramClientImpl) ApproveJoinRequest(chatID, userID int64) error {
	cfg := tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	}

	if _, err := c.bot.Request(cfg); err != nil {
		return wrapPlatformError("approveChatJoinRequest", err)
	}
	return nil
}

func (c *telegramClientImpl) BanMember(chatID, userID int64) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	}

	if _, err := c.bot.Request(cfg); err != nil {
		return wrapPlatformError("banChatMember", err)
	}
	return nil
}

func (c *telegramClientImpl) UnbanMember(chatID, userID int64, onlyIfBanned bool) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     onlyIfBanned,
	}

	if _, err := c.bot.Request(cfg); err != nil {
		return wrapPlatformError("unbanChatMember", err)
	}
	return nil
}

func (c *telegramClientImpl) CreateInviteLink(chatID int64, name string, expireAt time.Time, memberLimit int) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		Name:        name,
		MemberLimit: memberLimit,
	}
	if !expireAt.IsZero() {
		cfg.ExpireDate = int(expireAt.Unix())
	}

	resp, err := c.bot.Request(cfg)
	if err != nil {
		return "", wrapPlatformError("createChatInviteLink", err)
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("empty invite link for chat %d", chatID)
	}
	return link.InviteLink, nil
}

func (c *telegramClientImpl) DeleteWebhook() error {
	if _, err := c.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return wrapPlatformError("deleteWebhook", err)
	}
	return nil
}

// PlatformError is a failed Bot API call. Code is the API error code, or 0 when
// the request never produced an API response (transport failure).
type PlatformError struct {
	Op         string
	Code       int
	RetryAfter time.Duration
	Err        error
}

func (e *PlatformError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("telegram %s (%d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// Retryable is true for rate limiting, server-side and transport failures.
// Everything else (blocked bot, chat not found, missing rights) is terminal.
func (e *PlatformError) Retryable() bool {
	return e.Code == 0 || e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

func IsRetryable(err error) bool {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

func wrapPlatformError(op string, err error) error {
	pe := &PlatformError{Op: op, Err: err}

	var apiErr *tgbotapi.Error
	var apiErrVal tgbotapi.Error
	switch {
	case errors.As(err, &apiErr):
		pe.Code = apiErr.Code
		pe.RetryAfter = time.Duration(apiErr.RetryAfter) * time.Second
	case errors.As(err, &apiErrVal):
		pe.Code = apiErrVal.Code
		pe.RetryAfter = time.Duration(apiErrVal.RetryAfter) * time.Second
	}

	return pe
}
