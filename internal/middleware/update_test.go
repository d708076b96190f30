package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vip-access-bot/internal/middleware"
)

func messageFrom(id int64) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: id},
			Chat: &tgbotapi.Chat{ID: id, Type: "private"},
			Text: "hi",
		},
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	mark := func(name string) middleware.UpdateMiddleware {
		return func(next middleware.UpdateHandler) middleware.UpdateHandler {
			return func(ctx context.Context, u tgbotapi.Update) error {
				trace = append(trace, name)
				return next(ctx, u)
			}
		}
	}

	h := middleware.Chain(func(context.Context, tgbotapi.Update) error {
		trace = append(trace, "handler")
		return nil
	}, mark("outer"), mark("inner"))

	require.NoError(t, h(context.Background(), messageFrom(1)))
	assert.Equal(t, []string{"outer", "inner", "handler"}, trace)
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := middleware.Chain(func(context.Context, tgbotapi.Update) error {
		panic("boom")
	}, middleware.Recover(zerolog.Nop()))

	err := h(context.Background(), messageFrom(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestLoggerPassesErrorsThrough(t *testing.T) {
	want := errors.New("store down")
	h := middleware.Chain(func(context.Context, tgbotapi.Update) error {
		return want
	}, middleware.Logger(zerolog.Nop()))

	assert.ErrorIs(t, h(context.Background(), messageFrom(1)), want)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	h := middleware.Chain(func(ctx context.Context, _ tgbotapi.Update) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	}, middleware.Timeout(time.Second))

	require.NoError(t, h(context.Background(), messageFrom(1)))
}

func TestAdminOnly(t *testing.T) {
	var handled, denied int
	h := middleware.Chain(func(context.Context, tgbotapi.Update) error {
		handled++
		return nil
	}, middleware.AdminOnly(42, func(context.Context, tgbotapi.Update) error {
		denied++
		return nil
	}))

	require.NoError(t, h(context.Background(), messageFrom(42)))
	require.NoError(t, h(context.Background(), messageFrom(7)))
	require.NoError(t, h(context.Background(), tgbotapi.Update{}))

	assert.Equal(t, 1, handled)
	assert.Equal(t, 2, denied)
}
