package multivec

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisLeasePrefix = "multivec:lease:"

// RedisPublishLeaseManager coordinates per-model publish leases via Redis.
//
// It is intended as the distributed PublishLeaseManager implementation for
// multi-pod deployments (for example, Kubernetes), where an in-process mutex
// cannot serialize publishes across instances.
//
// System fit:
//   - ModelStore.Publish acquires a lease before staging/upload work.
//   - The lease ensures only one publisher per model ID is active
//     cluster-wide.
//   - Manifest version checks (UpsertIfMatch) remain the final consistency
//     guard.
//
// This combines lease-based coordination (to reduce concurrent work) with
// optimistic CAS on the manifest (to prevent lost updates).
//
// Redis semantics:
//   - Acquire uses SET NX PX for atomic lock-with-TTL.
//   - Renew uses a token-checked Lua script (GET + PEXPIRE).
//   - Release uses a token-checked Lua script (GET + DEL).
//
// Token checks are required so one publisher cannot accidentally renew or
// release another publisher's lease.
type RedisPublishLeaseManager struct {
	Client redis.UniversalClient
	Prefix string
}

// NewRedisPublishLeaseManager creates a Redis-backed lease manager.
//
// Prefix namespaces lease keys, so multiple environments/services can share
// one Redis cluster safely. If prefix is empty, a default namespace is used.
func NewRedisPublishLeaseManager(client redis.UniversalClient, prefix string) (*RedisPublishLeaseManager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisLeasePrefix
	}
	return &RedisPublishLeaseManager{Client: client, Prefix: prefix}, nil
}

// Acquire attempts to acquire a lease for modelID for the given ttl.
//
// The lease key is namespaced as <prefix><modelID>. On conflict, it returns
// ErrPublishLeaseConflict.
func (m *RedisPublishLeaseManager) Acquire(ctx context.Context, modelID string, ttl time.Duration) (*PublishLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(modelID) == "" {
		return nil, fmt.Errorf("modelID cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultPublishLeaseTTL
	}

	token, err := randomLeaseToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := m.Client.SetNX(ctx, m.key(modelID), token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPublishLeaseConflict
	}

	return &PublishLease{ModelID: modelID, Token: token, ExpiresAt: now.Add(ttl)}, nil
}

// Renew extends an existing lease when the token still owns the key.
//
// If the key is missing, expired, or owned by another token, it returns
// ErrPublishLeaseConflict.
func (m *RedisPublishLeaseManager) Renew(ctx context.Context, lease *PublishLease, ttl time.Duration) (*PublishLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || strings.TrimSpace(lease.ModelID) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if ttl <= 0 {
		ttl = defaultPublishLeaseTTL
	}

	now := time.Now().UTC()
	res, err := renewPublishLeaseScript.Run(ctx, m.Client, []string{m.key(lease.ModelID)}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, err
	}
	if res != 1 {
		return nil, ErrPublishLeaseConflict
	}

	return &PublishLease{ModelID: lease.ModelID, Token: lease.Token, ExpiresAt: now.Add(ttl)}, nil
}

// Release deletes an existing lease only if the token still owns the key.
//
// Release is idempotent for missing/invalid leases and does not return
// conflict if another publisher owns the key; ownership is enforced by token
// matching.
//
// Release always attempts the Redis call regardless of the caller's context
// state. A cancelled or deadline-exceeded context must not prevent the lock
// from being freed; failing to release would block all subsequent publishers
// until the TTL expires.
func (m *RedisPublishLeaseManager) Release(_ context.Context, lease *PublishLease) error {
	if lease == nil || strings.TrimSpace(lease.ModelID) == "" || strings.TrimSpace(lease.Token) == "" {
		return nil
	}

	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := releasePublishLeaseScript.Run(releaseCtx, m.Client, []string{m.key(lease.ModelID)}, lease.Token).Int()
	return err
}

func (m *RedisPublishLeaseManager) key(modelID string) string {
	return m.Prefix + modelID
}

func randomLeaseToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var renewPublishLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

var releasePublishLeaseScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)
