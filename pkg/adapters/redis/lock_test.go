package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reveriehq/reverie/pkg/adapters/redis"
)

func TestLocker_MutualExclusion(t *testing.T) {
	client := newTestClient(t)
	locker := redis.NewLocker(client, "reverie:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "tree-1", 10*time.Second)
	require.NoError(t, err)

	// Second acquisition must block until released or canceled.
	blockedCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(blockedCtx, "tree-1", 10*time.Second)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)

	// Independent keys are not serialized against each other.
	unlockOther, err := locker.Lock(ctx, "tree-2", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlockOther(ctx))

	// After release the key is free again.
	require.NoError(t, unlock(ctx))
	unlock2, err := locker.Lock(ctx, "tree-1", 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}
