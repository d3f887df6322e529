package multivec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type memoryLeaseRecord struct {
	token     string
	expiresAt time.Time
}

// InMemoryPublishLeaseManager provides in-process lease coordination. It is
// the default for single-process deployments and tests; multi-instance
// deployments should use RedisPublishLeaseManager instead.
type InMemoryPublishLeaseManager struct {
	mu       sync.Mutex
	leases   map[string]memoryLeaseRecord
	tokenSeq atomic.Uint64
}

// NewInMemoryPublishLeaseManager creates a new in-memory lease manager.
func NewInMemoryPublishLeaseManager() *InMemoryPublishLeaseManager {
	return &InMemoryPublishLeaseManager{
		leases: make(map[string]memoryLeaseRecord),
	}
}

// Acquire obtains a publish lease for the given model ID.
func (m *InMemoryPublishLeaseManager) Acquire(ctx context.Context, modelID string, ttl time.Duration) (*PublishLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if modelID == "" {
		return nil, fmt.Errorf("modelID cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultPublishLeaseTTL
	}

	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.leases[modelID]; ok && now.Before(rec.expiresAt) {
		return nil, ErrPublishLeaseConflict
	}

	token := fmt.Sprintf("%s-%d-%d", modelID, now.UnixNano(), m.tokenSeq.Add(1))
	expiresAt := now.Add(ttl)
	m.leases[modelID] = memoryLeaseRecord{token: token, expiresAt: expiresAt}

	return &PublishLease{ModelID: modelID, Token: token, ExpiresAt: expiresAt}, nil
}

// Renew extends an existing publish lease.
func (m *InMemoryPublishLeaseManager) Renew(ctx context.Context, lease *PublishLease, ttl time.Duration) (*PublishLease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lease == nil || lease.ModelID == "" || lease.Token == "" {
		return nil, fmt.Errorf("valid lease is required")
	}
	if ttl <= 0 {
		ttl = defaultPublishLeaseTTL
	}

	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.leases[lease.ModelID]
	if !ok || rec.token != lease.Token || !now.Before(rec.expiresAt) {
		return nil, ErrPublishLeaseConflict
	}

	expiresAt := now.Add(ttl)
	m.leases[lease.ModelID] = memoryLeaseRecord{token: lease.Token, expiresAt: expiresAt}

	return &PublishLease{ModelID: lease.ModelID, Token: lease.Token, ExpiresAt: expiresAt}, nil
}

// Release gives up a publish lease.
func (m *InMemoryPublishLeaseManager) Release(ctx context.Context, lease *PublishLease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lease == nil || lease.ModelID == "" || lease.Token == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.leases[lease.ModelID]
	if !ok {
		return nil
	}
	if rec.token == lease.Token {
		delete(m.leases, lease.ModelID)
	}
	return nil
}
