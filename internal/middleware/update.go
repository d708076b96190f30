package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// UpdateHandler processes one Telegram update.
type UpdateHandler func(ctx context.Context, u tgbotapi.Update) error

type UpdateMiddleware func(next UpdateHandler) UpdateHandler

// Chain wraps h so that the first middleware runs outermost.
func Chain(h UpdateHandler, mws ...UpdateMiddleware) UpdateHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func senderID(u tgbotapi.Update) int64 {
	if from := u.SentFrom(); from != nil {
		return from.ID
	}
	return 0
}

// Recover turns a handler panic into an error so one bad update cannot stop polling.
func Recover(log zerolog.Logger) UpdateMiddleware {
	return func(next UpdateHandler) UpdateHandler {
		return func(ctx context.Context, u tgbotapi.Update) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Int("update_id", u.UpdateID).
						Int64("sender_id", senderID(u)).
						Bytes("stack", debug.Stack()).
						Msgf("panic: %v", r)
					err = fmt.Errorf("panic handling update %d: %v", u.UpdateID, r)
				}
			}()
			return next(ctx, u)
		}
	}
}

// Logger records every failed update and, at debug level, every handled one.
func Logger(log zerolog.Logger) UpdateMiddleware {
	return func(next UpdateHandler) UpdateHandler {
		return func(ctx context.Context, u tgbotapi.Update) error {
			start := time.Now()
			err := next(ctx, u)

			event := log.Debug()
			if err != nil {
				event = log.Error().Err(err)
			}
			event.
				Int("update_id", u.UpdateID).
				Int64("sender_id", senderID(u)).
				Dur("took", time.Since(start)).
				Msg("update handled")
			return err
		}
	}
}

// Timeout bounds the work done for a single update.
func Timeout(d time.Duration) UpdateMiddleware {
	return func(next UpdateHandler) UpdateHandler {
		return func(ctx context.Context, u tgbotapi.Update) error {
			if d <= 0 {
				return next(ctx, u)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, u)
		}
	}
}

// AdminOnly lets only adminID through; everyone else gets deny.
func AdminOnly(adminID int64, deny UpdateHandler) UpdateMiddleware {
	return func(next UpdateHandler) UpdateHandler {
		return func(ctx context.Context, u tgbotapi.Update) error {
			if senderID(u) != adminID {
				return deny(ctx, u)
			}
			return next(ctx, u)
		}
	}
}
