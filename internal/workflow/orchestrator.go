package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/lock"
	"outreach-platform/internal/notify"
	"outreach-platform/pkg/logger"
)

// Publisher receives transition events for observers.
type Publisher interface {
	Publish(ev notify.TransitionEvent)
}

// Auditor records executed nodes. Best-effort.
type Auditor interface {
	Append(ctx context.Context, e audit.Entry) error
}

// Orchestrator resolves a lead's current step, runs its executor, and applies
// the resulting transition under the lead's fencing lock.
//
// Concurrency contract:
//   - The lock is acquired before the lead is (re-)read; callers never pass
//     lead state in, only an identity and a trigger.
//   - Contention is an expected skip, not an error: a concurrent invocation
//     already owns this lead's progression.
//   - Every persist is preceded by a fence validation; a silently expired
//     lock aborts the step without writing.
type Orchestrator struct {
	leads     lead.Repository
	campaigns campaign.Repository
	registry  *Registry
	locker    lock.Locker
	events    Publisher
	auditor   Auditor

	lockTTL time.Duration
	clock   func() time.Time

	// maxSteps bounds pass-through chaining within one invocation so a
	// mis-drawn graph cycle cannot spin forever.
	maxSteps int
}

func NewOrchestrator(
	leads lead.Repository,
	campaigns campaign.Repository,
	registry *Registry,
	locker lock.Locker,
	events Publisher,
	auditor Auditor,
	lockTTL time.Duration,
) *Orchestrator {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Orchestrator{
		leads:     leads,
		campaigns: campaigns,
		registry:  registry,
		locker:    locker,
		events:    events,
		auditor:   auditor,
		lockTTL:   lockTTL,
		clock:     time.Now,
		maxSteps:  25,
	}
}

// ErrLockLost is returned internally when the fence check fails mid-step.
var ErrLockLost = errors.New("workflow: lock lost before commit")

// Trigger advances the lead identified by leadID in response to trig.
//
// Returns nil on the expected skip outcomes (lock contention, lock
// infrastructure failure, executor error already recorded on the lead);
// a non-nil error means the trigger itself could not be processed at all
// (unknown lead, unknown campaign).
func (o *Orchestrator) Trigger(ctx context.Context, leadID string, trig Trigger) error {
	log := logger.From(ctx).With("lead_id", leadID, "trigger", string(trig.Kind))

	lease, ok, err := o.locker.Acquire(ctx, lock.WorkflowKey(leadID), o.lockTTL)
	if err != nil {
		// Fail-closed: an unreachable lock store means we must not proceed.
		log.Warn("lock acquisition failed, skipping trigger", "err", err)
		return nil
	}
	if !ok {
		log.Debug("lead is locked by a concurrent invocation, skipping")
		return nil
	}
	defer func() {
		if err := o.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
			log.Warn("lock release failed", "err", err)
		}
	}()

	// Re-read inside the critical section; state read before acquisition
	// may be stale.
	l, err := o.leads.Get(ctx, leadID)
	if err != nil {
		return err
	}
	camp, err := o.campaigns.Get(ctx, l.CampaignID)
	if err != nil {
		return err
	}

	if trig.Kind == TriggerInboundMessage {
		// Prefer the source's own timestamp over our receive time.
		at := trig.OccurredAt
		if at.IsZero() {
			at = o.clock().UTC()
		}
		l.LastUserMessageAt = &at
	}

	return o.run(ctx, l, camp, trig, lease, log)
}

func (o *Orchestrator) run(ctx context.Context, l lead.Lead, camp campaign.Campaign, trig Trigger, lease lock.Lease, log *slog.Logger) error {
	node, err := o.resolveNode(l, camp.Graph)
	if err != nil {
		return err
	}

	for step := 0; step < o.maxSteps; step++ {
		exec, err := o.registry.For(node.Type)
		if err != nil {
			return o.failLead(ctx, l, camp, node, err, lease, log)
		}

		res, err := exec.Execute(ctx, Input{
			Lead:     l,
			Campaign: camp,
			Node:     node,
			Graph:    camp.Graph,
			Trigger:  trig,
		})
		if err != nil {
			return o.failLead(ctx, l, camp, node, err, lease, log)
		}

		if res.MarkExecuted {
			o.recordExecution(ctx, l, camp, node, res, log)
		}
		if res.LeadStatus != "" {
			l.Status = res.LeadStatus
		}

		switch res.Outcome {
		case OutcomeAwaiting:
			ns := res.NodeState
			if ns != nil && ns.NodeID == "" {
				ns.NodeID = node.ID
			}
			l.CurrentNodeID = node.ID
			l.NodeState = ns
			if err := o.persist(ctx, l, lease); err != nil {
				log.Warn("suspend not persisted", "node_id", node.ID, "err", err)
				return nil
			}
			o.publish(notify.TransitionEvent{
				LeadID: l.ID, CampaignID: camp.ID, FromNode: node.ID,
				Status: string(l.Status), Output: res.Output,
			})
			return nil

		case OutcomeExited, OutcomeContinue:
			edge := res.Edge
			if edge == "" {
				edge = campaign.EdgeOutput0
			}
			next, hasNext := camp.Graph.NextNode(node.ID, edge)

			if !hasNext {
				// Dead end: implicit exit.
				if res.LeadStatus == "" && !isTerminal(l.Status) {
					l.Status = lead.StatusFinished
				}
				l.CurrentNodeID = node.ID
				l.NodeState = nil
				if err := o.persist(ctx, l, lease); err != nil {
					log.Warn("exit not persisted", "node_id", node.ID, "err", err)
					return nil
				}
				o.publish(notify.TransitionEvent{
					LeadID: l.ID, CampaignID: camp.ID, FromNode: node.ID,
					Edge: edge, Status: string(l.Status), Output: res.Output,
				})
				return nil
			}

			l.CurrentNodeID = next.ID
			l.NodeState = nil
			if err := o.persist(ctx, l, lease); err != nil {
				log.Warn("transition not persisted", "node_id", node.ID, "err", err)
				return nil
			}
			o.publish(notify.TransitionEvent{
				LeadID: l.ID, CampaignID: camp.ID, FromNode: node.ID,
				ToNode: next.ID, Edge: edge, Status: string(l.Status), Output: res.Output,
			})

			// The entry trigger is consumed by the first step; subsequent
			// chained steps run as resumption.
			trig = Trigger{Kind: TriggerResume}
			node = next

		default:
			return o.failLead(ctx, l, camp, node, errors.New("executor returned unknown outcome"), lease, log)
		}
	}

	log.Warn("step budget exhausted, suspending lead", "node_id", node.ID)
	return nil
}

// resolveNode finds the node to execute: the lead's current node, or the
// graph entry for a fresh lead.
func (o *Orchestrator) resolveNode(l lead.Lead, g campaign.Graph) (campaign.Node, error) {
	if l.CurrentNodeID == "" {
		return g.EntryNode()
	}
	node, ok := g.Node(l.CurrentNodeID)
	if !ok {
		return campaign.Node{}, errors.New("workflow: lead references unknown node " + l.CurrentNodeID)
	}
	return node, nil
}

// failLead marks the lead with an error indicator without corrupting its
// position, and surfaces the failure to observers. One lead's failure never
// propagates to the caller's batch.
func (o *Orchestrator) failLead(ctx context.Context, l lead.Lead, camp campaign.Campaign, node campaign.Node, cause error, lease lock.Lease, log *slog.Logger) error {
	var cfgErr *ConfigError
	isConfig := errors.As(cause, &cfgErr)

	log.Warn("node execution failed",
		"node_id", node.ID, "node_type", node.Type, "config_error", isConfig, "err", cause)

	l.Status = lead.StatusError
	l.LastError = cause.Error()
	if err := o.persist(ctx, l, lease); err != nil {
		log.Warn("error state not persisted", "err", err)
	}

	o.publish(notify.TransitionEvent{
		LeadID: l.ID, CampaignID: camp.ID, FromNode: node.ID,
		Status: string(l.Status), Error: cause.Error(), ConfigError: isConfig,
	})
	return nil
}

// persist writes the lead only while the fence still holds.
func (o *Orchestrator) persist(ctx context.Context, l lead.Lead, lease lock.Lease) error {
	valid, err := o.locker.IsValid(ctx, lease)
	if err != nil {
		// Fail-closed: cannot prove authority, do not write.
		return err
	}
	if !valid {
		return ErrLockLost
	}
	return o.leads.Update(ctx, l)
}

func (o *Orchestrator) recordExecution(ctx context.Context, l lead.Lead, camp campaign.Campaign, node campaign.Node, res Result, log *slog.Logger) {
	if o.auditor == nil {
		return
	}
	err := o.auditor.Append(ctx, audit.Entry{
		WorkspaceID: l.WorkspaceID,
		LeadID:      l.ID,
		CampaignID:  camp.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Edge:        res.Edge,
	})
	if err != nil {
		log.Warn("audit append failed", "node_id", node.ID, "err", err)
	}
}

func (o *Orchestrator) publish(ev notify.TransitionEvent) {
	if o.events == nil {
		return
	}
	ev.At = o.clock().UTC()
	o.events.Publish(ev)
}

func isTerminal(s lead.Status) bool {
	switch s {
	case lead.StatusQualified, lead.StatusHandedOff, lead.StatusFinished, lead.StatusError:
		return true
	default:
		return false
	}
}
