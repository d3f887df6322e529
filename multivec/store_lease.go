// store_lease.go defines the PublishLeaseManager interface and the
// ModelStore's lease acquisition helpers.
//
// System fit:
//
//   - ModelStore.Publish calls acquirePublishLease before staging or
//     uploading any artifacts. The lease serialises publishes per model ID
//     cluster-wide, reducing duplicate artifact uploads and CAS conflicts on
//     the manifest.
//   - The lease is intentionally coarse: it does not guarantee exclusivity —
//     the manifest CAS (UpsertIfMatch) remains the hard correctness guard.
//     The lease is an optimisation that makes conflicts rare rather than safe.
//
// Implementations:
//
//   - InMemoryPublishLeaseManager — in-process mutex, suitable for
//     single-pod deployments and tests.
//   - RedisPublishLeaseManager — Redis SET NX / Lua scripts, suitable for
//     multi-pod Kubernetes deployments.

package multivec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultPublishLeaseTTL = 30 * time.Second

// PublishLease represents a held distributed publish lock for a single model.
// The Token field is used by the lease manager to verify ownership on Renew
// and Release, preventing one publisher from accidentally releasing another's
// lease.
type PublishLease struct {
	ModelID   string
	Token     string
	ExpiresAt time.Time
}

// PublishLeaseManager provides distributed coordination for model publishes.
// Acquire returns ErrPublishLeaseConflict when the lease is already held.
// Renew extends an existing lease; it returns ErrPublishLeaseConflict if the
// lease has expired or been taken by another publisher. Release is always
// best-effort and must not be skipped on error paths.
type PublishLeaseManager interface {
	Acquire(ctx context.Context, modelID string, ttl time.Duration) (*PublishLease, error)
	Renew(ctx context.Context, lease *PublishLease, ttl time.Duration) (*PublishLease, error)
	Release(ctx context.Context, lease *PublishLease) error
}

// publishLeaseManagerAndTTL returns the configured PublishLeaseManager and
// TTL, falling back to an in-memory manager and defaultPublishLeaseTTL when
// either is unset. This ensures single-pod deployments work without explicit
// configuration.
func (s *ModelStore) publishLeaseManagerAndTTL() (PublishLeaseManager, time.Duration) {
	leaseManager := s.LeaseManager
	if leaseManager == nil {
		leaseManager = NewInMemoryPublishLeaseManager()
	}
	ttl := s.LeaseTTL
	if ttl <= 0 {
		ttl = defaultPublishLeaseTTL
	}
	return leaseManager, ttl
}

// acquirePublishLease acquires a publish lease for modelID and returns the
// manager and lease. The caller must defer leaseManager.Release(context.Background(), lease)
// regardless of subsequent errors to avoid holding the lease until TTL expiry.
//
// Conflicts are logged at WARN level; other errors at ERROR level.
func (s *ModelStore) acquirePublishLease(ctx context.Context, modelID string) (PublishLeaseManager, *PublishLease, error) {
	leaseManager, ttl := s.publishLeaseManagerAndTTL()
	lease, err := leaseManager.Acquire(ctx, modelID, ttl)
	if err != nil {
		if errors.Is(err, ErrPublishLeaseConflict) {
			slog.Default().WarnContext(ctx, "publish lease acquisition conflict", "model_id", modelID, "reason", "lease_conflict", "ttl", ttl.String())
		} else {
			slog.Default().ErrorContext(ctx, "publish lease acquisition failed", "model_id", modelID, "reason", "lease_acquire_failed", "error", err)
		}
		return nil, nil, fmt.Errorf("acquire publish lease: %w", err)
	}
	return leaseManager, lease, nil
}
