package handler

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"vip-access-bot/internal/middleware"
)

// Dispatcher runs updates of the same sender one at a time and in arrival
// order. Different senders are handled concurrently.
type Dispatcher struct {
	handle middleware.UpdateHandler

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
}

func NewDispatcher(handle middleware.UpdateHandler) *Dispatcher {
	return &Dispatcher{
		handle: handle,
		queues: make(map[int64][]tgbotapi.Update),
	}
}

// Dispatch queues u behind the sender's earlier updates and returns immediately.
func (d *Dispatcher) Dispatch(ctx context.Context, u tgbotapi.Update) {
	var key int64
	if from := u.SentFrom(); from != nil {
		key = from.ID
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	queue, running := d.queues[key]
	d.queues[key] = append(queue, u)
	if running {
		return
	}

	d.wg.Add(1)
	go d.drain(ctx, key)
}

// drain is the only worker for key. It exits, and drops the map entry, once
// the queue is empty.
func (d *Dispatcher) drain(ctx context.Context, key int64) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		u := queue[0]
		d.queues[key] = queue[1:]
		d.mu.Unlock()

		// errors are logged by the middleware chain
		_ = d.handle(ctx, u)
	}
}

// Wait blocks until every queued update has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
