package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"vip-access-bot/internal/model"
)

// SessionRepository holds in-progress purchases keyed by buyer id. Get returns
// (nil, nil) when the buyer has no session or it is older than the TTL.
type SessionRepository interface {
	Get(ctx context.Context, buyerID int64) (*model.PendingPurchase, error)
	Save(ctx context.Context, purchase *model.PendingPurchase) error
	Delete(ctx context.Context, buyerID int64) error
}

type memorySessionRepo struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]model.PendingPurchase
}

// NewMemorySessionRepository keeps sessions in process memory; they are lost
// on restart.
func NewMemorySessionRepository(ttl time.Duration, now func() time.Time) SessionRepository {
	if now == nil {
		now = time.Now
	}
	return &memorySessionRepo{
		ttl:      ttl,
		now:      now,
		sessions: make(map[int64]model.PendingPurchase),
	}
}

func (r *memorySessionRepo) Get(_ context.Context, buyerID int64) (*model.PendingPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.sessions[buyerID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().Sub(p.UpdatedAt) > r.ttl {
		delete(r.sessions, buyerID)
		return nil, nil
	}
	return &p, nil
}

func (r *memorySessionRepo) Save(_ context.Context, purchase *model.PendingPurchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := *purchase
	p.UpdatedAt = r.now()
	r.sessions[p.BuyerID] = p
	return nil
}

func (r *memorySessionRepo) Delete(_ context.Context, buyerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, buyerID)
	return nil
}

type redisSessionRepo struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessionRepository persists sessions as JSON with a TTL so a
// conversation survives process restarts.
func NewRedisSessionRepository(rdb *redis.Client, ttl time.Duration) SessionRepository {
	return &redisSessionRepo{
		rdb:    rdb,
		ttl:    ttl,
		prefix: "vipbot:session:",
	}
}

func (r *redisSessionRepo) key(buyerID int64) string {
	return r.prefix + strconv.FormatInt(buyerID, 10)
}

func (r *redisSessionRepo) Get(ctx context.Context, buyerID int64) (*model.PendingPurchase, error) {
	raw, err := r.rdb.Get(ctx, r.key(buyerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var p model.PendingPurchase
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &p, nil
}

func (r *redisSessionRepo) Save(ctx context.Context, purchase *model.PendingPurchase) error {
	p := *purchase
	p.UpdatedAt = time.Now()

	raw, err := json.Marshal(&p)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(p.BuyerID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *redisSessionRepo) Delete(ctx context.Context, buyerID int64) error {
	if err := r.rdb.Del(ctx, r.key(buyerID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
