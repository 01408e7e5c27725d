package lead

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and
// single-node development.
//
// NOTE: This is not intended for production; use PostgresRepo.
type MemoryRepo struct {
	mu    sync.Mutex
	leads map[string]Lead

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{leads: make(map[string]Lead), clock: time.Now}
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) FindByPhone(_ context.Context, campaignID, phone string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.Phone == phone {
			return l, nil
		}
	}
	return Lead{}, ErrNotFound
}

func (r *MemoryRepo) FindActiveByPhone(_ context.Context, phone string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	engaged := make(map[Status]struct{}, len(EngagedStatuses))
	for _, s := range EngagedStatuses {
		engaged[s] = struct{}{}
	}

	var found *Lead
	for _, l := range r.leads {
		if l.Phone != phone {
			continue
		}
		if _, ok := engaged[l.Status]; !ok {
			continue
		}
		if found == nil || l.CreatedAt.Before(found.CreatedAt) {
			cp := l
			found = &cp
		}
	}
	if found == nil {
		return Lead{}, ErrNotFound
	}
	return *found, nil
}

func (r *MemoryRepo) Create(_ context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}
	r.leads[l.ID] = l
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, l Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.leads[l.ID]; !ok {
		return ErrNotFound
	}
	l.UpdatedAt = r.clock().UTC()
	r.leads[l.ID] = l
	return nil
}

func (r *MemoryRepo) UpdateStatusFrom(_ context.Context, id string, from, to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return ErrNotFound
	}
	if l.Status != from {
		return ErrStatusConflict
	}
	l.Status = to
	l.UpdatedAt = r.clock().UTC()
	r.leads[id] = l
	return nil
}

func (r *MemoryRepo) ListByStatus(_ context.Context, campaignID string, status Status, limit int) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Lead
	for _, l := range r.leads {
		if l.CampaignID == campaignID && l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListByCampaign(_ context.Context, campaignID string, limit int) ([]Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Lead
	for _, l := range r.leads {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) CountUpdatedSince(_ context.Context, campaignID string, statuses []Status, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	in := make(map[Status]struct{}, len(statuses))
	for _, s := range statuses {
		in[s] = struct{}{}
	}

	count := 0
	for _, l := range r.leads {
		if l.CampaignID != campaignID {
			continue
		}
		if _, ok := in[l.Status]; !ok {
			continue
		}
		if l.UpdatedAt.Before(since) {
			continue
		}
		count++
	}
	return count, nil
}
