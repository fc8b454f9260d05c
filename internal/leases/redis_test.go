package leases

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-proto/amp/internal/amperrors"
)

func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := NewRedisBackend(mr.Addr(), "", 0, "")
	require.NoError(t, err)
	return b
}

func TestRedisAcquireConflictThenReleaseSucceeds(t *testing.T) {
	b := newTestRedisBackend(t)
	ctx := context.Background()

	l1, err := b.Acquire(ctx, "file:src/auth.rs", "agent-a", time.Minute)
	require.NoError(t, err)

	_, err = b.Acquire(ctx, "file:src/auth.rs", "agent-b", time.Minute)
	require.Error(t, err)
	var ampErr *amperrors.Error
	require.ErrorAs(t, err, &ampErr)
	assert.Equal(t, amperrors.KindConflict, ampErr.Kind)

	require.NoError(t, b.Release(ctx, l1.ID))
	l2, err := b.Acquire(ctx, "file:src/auth.rs", "agent-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", l2.Holder)
}

func TestRedisRenewRejectsNonHolder(t *testing.T) {
	b := newTestRedisBackend(t)
	ctx := context.Background()

	l, err := b.Acquire(ctx, "res", "agent-a", time.Minute)
	require.NoError(t, err)

	renewed, err := b.Renew(ctx, l.ID, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(l.ExpiresAt))

	_, err = b.Renew(ctx, "not-a-real-lease-id", time.Minute)
	require.Error(t, err)
	var ampErr *amperrors.Error
	require.ErrorAs(t, err, &ampErr)
	assert.Equal(t, amperrors.KindNotFound, ampErr.Kind)
}

func TestRedisListFiltersByPrefix(t *testing.T) {
	b := newTestRedisBackend(t)
	ctx := context.Background()

	_, err := b.Acquire(ctx, "file:src/auth.rs", "a", time.Minute)
	require.NoError(t, err)
	_, err = b.Acquire(ctx, "file:docs/readme.md", "a", time.Minute)
	require.NoError(t, err)

	out, err := b.List(ctx, "file:src/")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "file:src/auth.rs", out[0].Resource)
}
