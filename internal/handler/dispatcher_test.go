package handler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"vip-access-bot/internal/handler"
)

func TestDispatcherKeepsPerSenderOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		seen     = map[int64][]int{}
		inFlight = map[int64]int{}
		overlap  bool
	)

	d := handler.NewDispatcher(func(_ context.Context, u tgbotapi.Update) error {
		id := u.Message.From.ID
		mu.Lock()
		inFlight[id]++
		if inFlight[id] > 1 {
			overlap = true
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inFlight[id]--
		seen[id] = append(seen[id], u.UpdateID)
		mu.Unlock()
		return nil
	})

	for i := 1; i <= 20; i++ {
		for _, sender := range []int64{1, 2, 3} {
			d.Dispatch(context.Background(), tgbotapi.Update{
				UpdateID: i,
				Message:  &tgbotapi.Message{From: &tgbotapi.User{ID: sender}},
			})
		}
	}
	d.Wait()

	assert.False(t, overlap, "one sender's updates ran concurrently")
	for _, sender := range []int64{1, 2, 3} {
		assert.Len(t, seen[sender], 20)
		assert.IsIncreasing(t, seen[sender])
	}
}
