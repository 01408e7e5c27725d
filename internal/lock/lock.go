package lock

import (
	"context"
	"fmt"
	"time"
)

// Lease is proof of a held lock. Token is a fencing token: it increases
// monotonically across successive acquisitions of the same key, so a writer
// holding a stale lease can be detected even after its TTL silently expired.
type Lease struct {
	Key   string
	Token int64
}

// Locker serializes operations keyed by a logical resource across one or
// more process instances.
//
// Failure policy is fail-closed: any infrastructure error during acquisition
// or validation must be treated by callers as "not acquired" / "not valid".
//
// Contract:
//   - Acquire returns (lease, true, nil) on success, (_, false, nil) when the
//     lock is already held, and (_, false, err) on infrastructure failure.
//   - Release is a no-op when the lease has already been superseded.
//   - IsValid must be called before committing any write performed under a
//     long-running critical section; a lease loses authority silently when
//     its TTL lapses.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
	Release(ctx context.Context, lease Lease) error
	IsValid(ctx context.Context, lease Lease) (bool, error)
	CurrentToken(ctx context.Context, key string) (int64, bool, error)
}

// WorkflowKey names the lock that guards a single lead's progression.
func WorkflowKey(leadID string) string {
	return fmt.Sprintf("workflow:%s", leadID)
}
