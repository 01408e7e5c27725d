package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/workflow"
)

type fakeOrch struct {
	mu        sync.Mutex
	triggered []string
	failFor   map[string]error
}

func (f *fakeOrch) Trigger(_ context.Context, leadID string, _ workflow.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[leadID]; ok {
		return err
	}
	f.triggered = append(f.triggered, leadID)
	return nil
}

type fixture struct {
	campaigns *campaign.MemoryRepo
	leads     *lead.MemoryRepo
	orch      *fakeOrch
	d         *Dispatcher
	sleeps    []time.Duration
	now       time.Time
}

func newFixture(t *testing.T, camp campaign.Campaign) *fixture {
	t.Helper()

	f := &fixture{
		campaigns: campaign.NewMemoryRepo(),
		leads:     lead.NewMemoryRepo(),
		orch:      &fakeOrch{},
		now:       time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	f.campaigns.Put(camp)

	f.d = New(f.campaigns, f.leads, f.orch, time.Minute)
	f.d.clock = func() time.Time { return f.now }
	f.d.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return f
}

func activeCampaign(maxPerDay, batchSize, delayMs int) campaign.Campaign {
	return campaign.Campaign{
		ID:                "camp-1",
		Status:            campaign.StatusActive,
		AutoEngage:        true,
		MaxLeadsPerDay:    maxPerDay,
		BatchSize:         batchSize,
		DelayBetweenLeads: delayMs,
	}
}

func (f *fixture) seedNewLeads(t *testing.T, n int) {
	t.Helper()
	base := f.now.Add(-time.Hour)
	for i := 0; i < n; i++ {
		err := f.leads.Create(context.Background(), lead.Lead{
			ID:         fmt.Sprintf("lead-%d", i),
			CampaignID: "camp-1",
			Status:     lead.StatusNew,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:  base,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func (f *fixture) seedConsumedToday(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := f.leads.Create(context.Background(), lead.Lead{
			ID:         fmt.Sprintf("consumed-%d", i),
			CampaignID: "camp-1",
			Status:     lead.StatusContacted,
			CreatedAt:  f.now.Add(-2 * time.Hour),
			UpdatedAt:  f.now.Add(-time.Hour),
		})
		if err != nil {
			t.Fatalf("seed consumed: %v", err)
		}
	}
}

func TestRunCycle_QuotaExhaustedSelectsNothing(t *testing.T) {
	f := newFixture(t, activeCampaign(5, 10, 100))
	f.seedConsumedToday(t, 5)
	f.seedNewLeads(t, 3)

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(f.orch.triggered) != 0 {
		t.Fatalf("expected no dispatches, got %v", f.orch.triggered)
	}
}

func TestRunCycle_SelectsMinOfBatchAndRemaining(t *testing.T) {
	f := newFixture(t, activeCampaign(5, 10, 100))
	f.seedConsumedToday(t, 2)
	f.seedNewLeads(t, 10)

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	// remaining quota = 3, batch = 10 -> 3 dispatches, oldest first.
	want := []string{"lead-0", "lead-1", "lead-2"}
	if len(f.orch.triggered) != len(want) {
		t.Fatalf("expected %v, got %v", want, f.orch.triggered)
	}
	for i, id := range want {
		if f.orch.triggered[i] != id {
			t.Fatalf("expected %v, got %v", want, f.orch.triggered)
		}
	}
}

func TestRunCycle_PacingBetweenLeadsOnly(t *testing.T) {
	f := newFixture(t, activeCampaign(50, 4, 250))
	f.seedNewLeads(t, 4)

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	// N leads -> N-1 inter-lead delays.
	if len(f.sleeps) != 3 {
		t.Fatalf("expected 3 delays, got %d", len(f.sleeps))
	}
	for _, d := range f.sleeps {
		if d != 250*time.Millisecond {
			t.Fatalf("expected 250ms pacing, got %s", d)
		}
	}
}

func TestRunCycle_FlipsToProcessingBeforeTrigger(t *testing.T) {
	f := newFixture(t, activeCampaign(50, 10, 0))
	f.seedNewLeads(t, 1)

	claimed := false
	f.orch.failFor = nil
	checkOrch := &statusCheckingOrch{f: f, claimed: &claimed}
	f.d.orch = checkOrch

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if !claimed {
		t.Fatalf("expected status flip to happen before the orchestrator ran")
	}
}

type statusCheckingOrch struct {
	f       *fixture
	claimed *bool
}

func (s *statusCheckingOrch) Trigger(ctx context.Context, leadID string, _ workflow.Trigger) error {
	l, err := s.f.leads.Get(ctx, leadID)
	if err != nil {
		return err
	}
	*s.claimed = l.Status == lead.StatusProcessing
	return nil
}

func TestRunCycle_AlreadyClaimedLeadIsSkipped(t *testing.T) {
	f := newFixture(t, activeCampaign(50, 10, 0))
	f.seedNewLeads(t, 2)

	// Another instance claims lead-0 between selection and flip. Simulate by
	// pre-flipping it; the CAS must lose and the cycle must continue.
	if err := f.leads.UpdateStatusFrom(context.Background(), "lead-0", lead.StatusNew, lead.StatusProcessing); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(f.orch.triggered) != 1 || f.orch.triggered[0] != "lead-1" {
		t.Fatalf("expected only lead-1, got %v", f.orch.triggered)
	}
}

func TestRunCycle_PerLeadFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, activeCampaign(50, 10, 0))
	f.seedNewLeads(t, 3)
	f.orch.failFor = map[string]error{"lead-1": errors.New("boom")}

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(f.orch.triggered) != 2 {
		t.Fatalf("expected the other two leads to dispatch, got %v", f.orch.triggered)
	}
}

func TestRunCycle_SkipsInactiveAndManualCampaigns(t *testing.T) {
	paused := activeCampaign(50, 10, 0)
	paused.Status = campaign.StatusPaused
	f := newFixture(t, paused)
	f.seedNewLeads(t, 2)

	manual := activeCampaign(50, 10, 0)
	manual.ID = "camp-2"
	manual.AutoEngage = false
	f.campaigns.Put(manual)

	if err := f.d.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if len(f.orch.triggered) != 0 {
		t.Fatalf("expected no dispatches, got %v", f.orch.triggered)
	}
}
