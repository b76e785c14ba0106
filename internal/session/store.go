package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/orderdesk/internal/domain"
)

// Store keeps one conversation session per chat user. A missing or expired
// session reads as domain.Idle.
type Store interface {
	Get(ctx context.Context, userID int64) (domain.Session, error)
	Set(ctx context.Context, userID int64, s domain.Session) error
	Clear(ctx context.Context, userID int64) error
}

type memoryEntry struct {
	session   domain.Session
	expiresAt time.Time
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

// NewMemoryStore returns a MemoryStore whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration, clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{ttl: ttl, now: clock, entries: make(map[int64]memoryEntry)}
}

func (m *MemoryStore) Get(_ context.Context, userID int64) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[userID]
	if !ok {
		return domain.Idle{}, nil
	}
	if m.ttl > 0 && !m.now().Before(entry.expiresAt) {
		delete(m.entries, userID)
		return domain.Idle{}, nil
	}
	return entry.session, nil
}

func (m *MemoryStore) Set(_ context.Context, userID int64, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, idle := s.(domain.Idle); s == nil || idle {
		delete(m.entries, userID)
		return nil
	}
	m.entries[userID] = memoryEntry{session: s, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}

const redisKeyPrefix = "orderdesk:session:"

// RedisStore keeps sessions in Redis so they survive restarts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore returns a RedisStore whose keys expire after ttl.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (domain.Session, error) {
	raw, err := r.client.Get(ctx, redisKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Idle{}, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	s, err := domain.UnmarshalSession(raw)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Set(ctx context.Context, userID int64, s domain.Session) error {
	if _, idle := s.(domain.Idle); s == nil || idle {
		return r.Clear(ctx, userID)
	}
	raw, err := domain.MarshalSession(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, redisKey(userID), raw, r.ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, redisKey(userID)).Err()
}

func redisKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}
