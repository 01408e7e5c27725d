package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/workflow"
	"outreach-platform/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Triggerer is the orchestrator surface the dispatcher needs.
type Triggerer interface {
	Trigger(ctx context.Context, leadID string, trig workflow.Trigger) error
}

// Dispatcher periodically injects new leads into active auto-engage
// campaigns under a daily quota and inter-lead pacing.
//
// Double-dispatch safety lives in one place: the conditional new->processing
// status flip, which happens-before the orchestrator is invoked. A lead the
// flip loses (another cycle or a concurrent trigger claimed it) is skipped.
type Dispatcher struct {
	campaigns campaign.Repository
	leads     lead.Repository
	orch      Triggerer

	interval time.Duration

	// clock and sleep are injectable for deterministic tests.
	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(campaigns campaign.Repository, leads lead.Repository, orch Triggerer, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Dispatcher{
		campaigns: campaigns,
		leads:     leads,
		orch:      orch,
		interval:  interval,
		clock:     time.Now,
		sleep:     ctxSleep,
	}
}

// Start schedules RunCycle on the configured interval and runs one cycle
// immediately. It returns a stop function.
func (d *Dispatcher) Start(ctx context.Context) (stop func()) {
	log := logger.From(ctx)

	c := cron.New()
	_, err := c.AddFunc("@every "+d.interval.String(), func() {
		if err := d.RunCycle(ctx); err != nil {
			log.Error("dispatch cycle failed", "err", err)
		}
	})
	if err != nil {
		// The expression is built from a validated duration; this is a
		// programming error, not a runtime condition.
		panic(err)
	}

	go func() {
		if err := d.RunCycle(ctx); err != nil {
			log.Error("initial dispatch cycle failed", "err", err)
		}
	}()
	c.Start()

	return func() {
		<-c.Stop().Done()
	}
}

// RunCycle performs one dispatch pass over all eligible campaigns. A
// campaign's failure is logged and does not abort the remaining campaigns.
func (d *Dispatcher) RunCycle(ctx context.Context) error {
	log := logger.From(ctx)

	campaigns, err := d.campaigns.ListActiveAutoEngage(ctx)
	if err != nil {
		return err
	}

	for _, camp := range campaigns {
		if err := d.dispatchCampaign(ctx, camp, log); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error("campaign dispatch failed", "campaign_id", camp.ID, "err", err)
		}
	}
	return nil
}

func (d *Dispatcher) dispatchCampaign(ctx context.Context, camp campaign.Campaign, log *slog.Logger) error {
	limits := camp.ResolveRateLimits()

	consumed, err := d.leads.CountUpdatedSince(ctx, camp.ID, lead.ConsumedToday, d.startOfDay())
	if err != nil {
		return err
	}
	remaining := limits.MaxLeadsPerDay - consumed
	if remaining <= 0 {
		log.Debug("daily quota exhausted", "campaign_id", camp.ID, "consumed", consumed)
		return nil
	}

	batch := limits.BatchSize
	if remaining < batch {
		batch = remaining
	}

	selected, err := d.leads.ListByStatus(ctx, camp.ID, lead.StatusNew, batch)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return nil
	}

	log.Info("dispatching leads",
		"campaign_id", camp.ID, "count", len(selected), "remaining_quota", remaining)

	for i, l := range selected {
		if i > 0 {
			if err := d.sleep(ctx, limits.DelayBetween); err != nil {
				return err
			}
		}

		// Claim before invoking: the flip is the sole guard against a second
		// cycle or a concurrent trigger re-selecting this lead.
		if err := d.leads.UpdateStatusFrom(ctx, l.ID, lead.StatusNew, lead.StatusProcessing); err != nil {
			if errors.Is(err, lead.ErrStatusConflict) {
				log.Debug("lead already claimed", "lead_id", l.ID)
				continue
			}
			log.Error("lead claim failed", "lead_id", l.ID, "err", err)
			continue
		}

		if err := d.orch.Trigger(ctx, l.ID, workflow.Trigger{Kind: workflow.TriggerDispatch}); err != nil {
			// Isolated per lead: the rest of the batch still goes out.
			log.Error("lead dispatch failed", "lead_id", l.ID, "err", err)
		}
	}
	return nil
}

// startOfDay is the quota window boundary: local midnight.
func (d *Dispatcher) startOfDay() time.Time {
	now := d.clock()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
