package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/orderdesk/internal/domain"
)

func TestMemoryStoreExpiresToIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Hour, func() time.Time { return now })

	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Idle{}, got)

	require.NoError(t, store.Set(ctx, 1, domain.ReplyingTo{TicketID: "ABC123-1"}))
	got, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ReplyingTo{TicketID: "ABC123-1"}, got)

	now = now.Add(time.Hour)
	got, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Idle{}, got)
}

func TestMemoryStoreIdleClears(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, nil)

	require.NoError(t, store.Set(ctx, 7, domain.AwaitingReferral{Section: "Bulk"}))
	require.NoError(t, store.Set(ctx, 7, domain.Idle{}))
	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.Idle{}, got)

	require.NoError(t, store.Set(ctx, 7, domain.InReview{Step: domain.ReviewStepStars}))
	require.NoError(t, store.Clear(ctx, 7))
	got, err = store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.Idle{}, got)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "orderdesk:session:42", redisKey(42))
}
