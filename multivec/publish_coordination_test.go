package multivec

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysConflictPublishLeaseManager struct{}

func (alwaysConflictPublishLeaseManager) Acquire(ctx context.Context, modelID string, ttl time.Duration) (*PublishLease, error) {
	return nil, ErrPublishLeaseConflict
}

func (alwaysConflictPublishLeaseManager) Renew(ctx context.Context, lease *PublishLease, ttl time.Duration) (*PublishLease, error) {
	return nil, ErrPublishLeaseConflict
}

func (alwaysConflictPublishLeaseManager) Release(ctx context.Context, lease *PublishLease) error {
	return nil
}

func TestPublishLeaseRedis(t *testing.T) {
	type testCase struct {
		name string
		run  func(t *testing.T, ctx context.Context, mr *miniredis.Miniredis, mgr *RedisPublishLeaseManager)
	}

	tests := []testCase{
		{
			name: "renew_before_expiry",
			run: func(t *testing.T, ctx context.Context, _ *miniredis.Miniredis, mgr *RedisPublishLeaseManager) {
				lease, err := mgr.Acquire(ctx, "model-1", 500*time.Millisecond)
				require.NoError(t, err)
				require.NotEmpty(t, lease.Token)

				_, err = mgr.Acquire(ctx, "model-1", 500*time.Millisecond)
				require.ErrorIs(t, err, ErrPublishLeaseConflict)

				renewed, err := mgr.Renew(ctx, lease, 1200*time.Millisecond)
				require.NoError(t, err)
				assert.Equal(t, lease.Token, renewed.Token)
				assert.True(t, renewed.ExpiresAt.After(lease.ExpiresAt))

				require.NoError(t, mgr.Release(ctx, renewed))
				_, err = mgr.Acquire(ctx, "model-1", 500*time.Millisecond)
				require.NoError(t, err)
			},
		},
		{
			name: "renew_after_expiry_conflicts",
			run: func(t *testing.T, ctx context.Context, mr *miniredis.Miniredis, mgr *RedisPublishLeaseManager) {
				lease, err := mgr.Acquire(ctx, "model-1", 500*time.Millisecond)
				require.NoError(t, err)

				mr.FastForward(2 * time.Second)

				_, err = mgr.Renew(ctx, lease, time.Second)
				require.ErrorIs(t, err, ErrPublishLeaseConflict)
				_, err = mgr.Acquire(ctx, "model-1", 500*time.Millisecond)
				require.NoError(t, err)
			},
		},
		{
			name: "release_requires_matching_token",
			run: func(t *testing.T, ctx context.Context, _ *miniredis.Miniredis, mgr *RedisPublishLeaseManager) {
				lease, err := mgr.Acquire(ctx, "model-1", time.Second)
				require.NoError(t, err)

				wrong := &PublishLease{ModelID: lease.ModelID, Token: "not-the-token"}
				require.NoError(t, mgr.Release(ctx, wrong))

				_, err = mgr.Acquire(ctx, "model-1", time.Second)
				require.ErrorIs(t, err, ErrPublishLeaseConflict)

				require.NoError(t, mgr.Release(ctx, lease))
				_, err = mgr.Acquire(ctx, "model-1", time.Second)
				require.NoError(t, err)
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mr := miniredis.RunT(t)

			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })

			mgr, err := NewRedisPublishLeaseManager(client, "test:lease:")
			require.NoError(t, err)
			tc.run(t, ctx, mr, mgr)
		})
	}
}

func TestPublishLeaseInMemory(t *testing.T) {
	ctx := context.Background()
	mgr := NewInMemoryPublishLeaseManager()

	lease, err := mgr.Acquire(ctx, "model-lease", 100*time.Millisecond)
	require.NoError(t, err)

	_, err = mgr.Acquire(ctx, "model-lease", 100*time.Millisecond)
	require.ErrorIs(t, err, ErrPublishLeaseConflict)

	renewed, err := mgr.Renew(ctx, lease, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(lease.ExpiresAt))

	require.NoError(t, mgr.Release(ctx, lease))

	_, err = mgr.Acquire(ctx, "model-lease", 100*time.Millisecond)
	require.NoError(t, err)
}

func TestPublishLeaseInjectedManager(t *testing.T) {
	ctx := context.Background()
	m := trainedTestModel(t)

	store := NewModelStore(&LocalBlobStore{Root: t.TempDir()},
		WithPublishLeaseManager(alwaysConflictPublishLeaseManager{}))

	_, err := store.Publish(ctx, "model-opt", m)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPublishLeaseConflict))
}
