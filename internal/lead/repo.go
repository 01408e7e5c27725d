package lead

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("lead: not found")

	// ErrStatusConflict is returned by UpdateStatusFrom when the lead is no
	// longer in the expected status. The dispatcher relies on this to make
	// its pre-claim race-safe.
	ErrStatusConflict = errors.New("lead: status conflict")
)

// Repository is the persistence contract for leads.
type Repository interface {
	Get(ctx context.Context, id string) (Lead, error)
	FindByPhone(ctx context.Context, campaignID, phone string) (Lead, error)

	// FindActiveByPhone returns the lead for phone whose status is in
	// EngagedStatuses. A phone has at most one engaged lead at a time;
	// if data violates that, the oldest wins.
	FindActiveByPhone(ctx context.Context, phone string) (Lead, error)
	Create(ctx context.Context, l Lead) error

	// Update overwrites the lead's mutable fields (status, current node,
	// node state, last error, timestamps) as one write.
	Update(ctx context.Context, l Lead) error

	// UpdateStatusFrom conditionally flips status from->to. It fails with
	// ErrStatusConflict when the stored status differs from from.
	UpdateStatusFrom(ctx context.Context, id string, from, to Status) error

	// ListByStatus returns up to limit leads of a campaign in the given
	// status, oldest first.
	ListByStatus(ctx context.Context, campaignID string, status Status, limit int) ([]Lead, error)

	// ListByCampaign returns up to limit leads of a campaign in any status,
	// oldest first.
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]Lead, error)

	// CountUpdatedSince counts leads of a campaign whose status is in
	// statuses and whose last update is at or after since.
	CountUpdatedSince(ctx context.Context, campaignID string, statuses []Status, since time.Time) (int, error)
}
