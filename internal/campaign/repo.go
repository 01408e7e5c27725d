package campaign

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("campaign: not found")

// Repository is the persistence contract for campaigns.
type Repository interface {
	Get(ctx context.Context, id string) (Campaign, error)
	List(ctx context.Context, workspaceID string) ([]Campaign, error)

	// ListActiveAutoEngage returns campaigns eligible for outbound dispatch.
	ListActiveAutoEngage(ctx context.Context) ([]Campaign, error)

	UpdateStatus(ctx context.Context, id string, status Status) error
}
