package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
)

const linkStatePrefix = "oauth:state:"

// RedisLinkStateStore keeps link attempts in Redis so any replica can serve the callback.
type RedisLinkStateStore struct {
	client *redis.Client
}

func NewRedisLinkStateStore(client *redis.Client) *RedisLinkStateStore {
	return &RedisLinkStateStore{client: client}
}

var _ repository.ILinkStateStore = (*RedisLinkStateStore)(nil)

func (s *RedisLinkStateStore) Put(ctx context.Context, attempt *model.LinkAttempt) error {
	ttl := time.Until(attempt.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("link attempt already expired: %w", model.ErrInvalidInput)
	}
	payload, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, linkStatePrefix+attempt.State, payload, ttl).Err()
}

// Take uses GETDEL so a state can be redeemed once.
func (s *RedisLinkStateStore) Take(ctx context.Context, state string) (*model.LinkAttempt, error) {
	raw, err := s.client.GetDel(ctx, linkStatePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var attempt model.LinkAttempt
	if err := json.Unmarshal(raw, &attempt); err != nil {
		return nil, fmt.Errorf("decode link attempt: %w", err)
	}
	if !attempt.ExpiresAt.After(time.Now()) {
		return nil, model.ErrNotFound
	}
	return &attempt, nil
}

// MemoryLinkStateStore is used when Redis is not configured. States do not survive a
// restart and are not shared between replicas.
type MemoryLinkStateStore struct {
	mu     sync.Mutex
	states map[string]*model.LinkAttempt
	now    func() time.Time
}

func NewMemoryLinkStateStore() *MemoryLinkStateStore {
	return &MemoryLinkStateStore{states: make(map[string]*model.LinkAttempt), now: time.Now}
}

var _ repository.ILinkStateStore = (*MemoryLinkStateStore)(nil)

func (s *MemoryLinkStateStore) Put(_ context.Context, attempt *model.LinkAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// opportunistic cleanup of expired states
	for k, v := range s.states {
		if !v.ExpiresAt.After(now) {
			delete(s.states, k)
		}
	}
	cp := *attempt
	s.states[attempt.State] = &cp
	return nil
}

func (s *MemoryLinkStateStore) Take(_ context.Context, state string) (*model.LinkAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.states[state]
	if !ok {
		return nil, model.ErrNotFound
	}
	delete(s.states, state)
	if !attempt.ExpiresAt.After(s.now()) {
		return nil, model.ErrNotFound
	}
	return attempt, nil
}
