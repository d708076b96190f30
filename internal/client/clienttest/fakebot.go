// Package clienttest provides a recording stand-in for the Telegram Bot API.
package clienttest

import (
	"encoding/json"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type FakeBot struct {
	mu     sync.Mutex
	calls  []tgbotapi.Chattable
	nextID int
	lastID map[int64]int

	// Fail, when set, decides per call whether the API rejects it.
	Fail func(c tgbotapi.Chattable) error
	// InviteLink is returned by createChatInviteLink.
	InviteLink string
}

func NewFakeBot() *FakeBot {
	return &FakeBot{
		InviteLink: "https://t.me/+fakeInvite",
		lastID:     make(map[int64]int),
	}
}

func (f *FakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := f.record(c); err != nil {
		return tgbotapi.Message{}, err
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	if chatID, ok := sentTo(c); ok {
		f.lastID[chatID] = id
	}
	f.mu.Unlock()

	return tgbotapi.Message{MessageID: id}, nil
}

func sentTo(c tgbotapi.Chattable) (int64, bool) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		return m.ChatID, true
	case tgbotapi.PhotoConfig:
		return m.ChatID, true
	case tgbotapi.DocumentConfig:
		return m.ChatID, true
	}
	return 0, false
}

// LastMessageID is the id assigned to the latest message sent to chatID, or 0.
func (f *FakeBot) LastMessageID(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID[chatID]
}

func (f *FakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	if err := f.record(c); err != nil {
		return &tgbotapi.APIResponse{Ok: false}, err
	}

	if _, ok := c.(tgbotapi.CreateChatInviteLinkConfig); ok {
		raw, _ := json.Marshal(tgbotapi.ChatInviteLink{InviteLink: f.InviteLink})
		return &tgbotapi.APIResponse{Ok: true, Result: raw}, nil
	}
	return &tgbotapi.APIResponse{Ok: true, Result: json.RawMessage("true")}, nil
}

func (f *FakeBot) record(c tgbotapi.Chattable) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	fail := f.Fail
	f.mu.Unlock()

	if fail != nil {
		return fail(c)
	}
	return nil
}

func (f *FakeBot) Calls() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.calls...)
}

func (f *FakeBot) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Outbox returns the text of every message, photo or document caption sent to chatID.
func (f *FakeBot) Outbox(chatID int64) []string {
	var out []string
	for _, c := range f.Calls() {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ChatID == chatID {
				out = append(out, m.Text)
			}
		case tgbotapi.PhotoConfig:
			if m.ChatID == chatID {
				out = append(out, m.Caption)
			}
		case tgbotapi.DocumentConfig:
			if m.ChatID == chatID {
				out = append(out, m.Caption)
			}
		}
	}
	return out
}

func (f *FakeBot) Bans() []tgbotapi.BanChatMemberConfig {
	var out []tgbotapi.BanChatMemberConfig
	for _, c := range f.Calls() {
		if b, ok := c.(tgbotapi.BanChatMemberConfig); ok {
			out = append(out, b)
		}
	}
	return out
}

func (f *FakeBot) Unbans() []tgbotapi.UnbanChatMemberConfig {
	var out []tgbotapi.UnbanChatMemberConfig
	for _, c := range f.Calls() {
		if u, ok := c.(tgbotapi.UnbanChatMemberConfig); ok {
			out = append(out, u)
		}
	}
	return out
}

func (f *FakeBot) CallbackAnswers() []tgbotapi.CallbackConfig {
	var out []tgbotapi.CallbackConfig
	for _, c := range f.Calls() {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

func (f *FakeBot) Edits() []tgbotapi.Chattable {
	var out []tgbotapi.Chattable
	for _, c := range f.Calls() {
		switch c.(type) {
		case tgbotapi.EditMessageTextConfig, tgbotapi.EditMessageCaptionConfig:
			out = append(out, c)
		}
	}
	return out
}
