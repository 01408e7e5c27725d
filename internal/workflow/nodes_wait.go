package workflow

import (
	"context"
	"time"

	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
)

// WaitReplyExecutor suspends the lead until an inbound message arrives, then
// routes it along the first matching rule edge.
//
// Re-entry discipline: resumption is detected by the persisted node state
// (WAITING_REPLY parked on this node), never by the trigger alone.
type WaitReplyExecutor struct {
	clock func() time.Time
}

func NewWaitReplyExecutor() *WaitReplyExecutor {
	return &WaitReplyExecutor{clock: time.Now}
}

func (e *WaitReplyExecutor) Execute(_ context.Context, in Input) (Result, error) {
	if !in.Lead.WaitingAt(in.Node.ID) {
		// Entry: park and wait for the next inbound message.
		return Result{
			Outcome: OutcomeAwaiting,
			NodeState: &lead.NodeState{
				Status:    lead.NodeStateWaitingReply,
				NodeID:    in.Node.ID,
				EnteredAt: e.clock().UTC(),
			},
		}, nil
	}

	if in.Trigger.Kind != TriggerInboundMessage {
		// Woken by something other than a reply (e.g. a deferred resume);
		// stay parked.
		return Result{Outcome: OutcomeAwaiting, NodeState: in.Lead.NodeState}, nil
	}

	edge, status := SelectEdge(rulesFromConfig(in.Node.Config), in.Trigger.Body)
	res := Result{
		Outcome:      OutcomeExited,
		Edge:         edge,
		Output:       map[string]any{"input": in.Trigger.Body, "edge": edge},
		MarkExecuted: true,
	}
	if status != "" {
		res.LeadStatus = lead.Status(status)
	}
	return res, nil
}

// DelayExecutor parks the lead for a configured duration. The wait is
// persisted, not blocked on; any later trigger past the deadline releases it.
type DelayExecutor struct {
	clock func() time.Time
}

func NewDelayExecutor() *DelayExecutor {
	return &DelayExecutor{clock: time.Now}
}

const delayResumeAtKey = "resume_at"

func (e *DelayExecutor) Execute(_ context.Context, in Input) (Result, error) {
	now := e.clock().UTC()

	if !in.Lead.WaitingAt(in.Node.ID) {
		seconds, _ := in.Node.Config["seconds"].(float64)
		if seconds <= 0 {
			if n, ok := in.Node.Config["seconds"].(int); ok && n > 0 {
				seconds = float64(n)
			}
		}
		if seconds <= 0 {
			// Zero delay is a pass-through.
			return Result{Outcome: OutcomeContinue, Edge: campaign.EdgeOutput0}, nil
		}
		resumeAt := now.Add(time.Duration(seconds * float64(time.Second)))
		return Result{
			Outcome: OutcomeAwaiting,
			NodeState: &lead.NodeState{
				Status:    lead.NodeStateDelaying,
				NodeID:    in.Node.ID,
				EnteredAt: now,
				Data:      map[string]any{delayResumeAtKey: resumeAt.Format(time.RFC3339)},
			},
		}, nil
	}

	resumeAt, ok := delayDeadline(in.Lead.NodeState)
	if ok && now.Before(resumeAt) {
		// Still inside the window; stay parked.
		return Result{Outcome: OutcomeAwaiting, NodeState: in.Lead.NodeState}, nil
	}
	return Result{
		Outcome:      OutcomeExited,
		Edge:         campaign.EdgeOutput0,
		MarkExecuted: true,
	}, nil
}

func delayDeadline(ns *lead.NodeState) (time.Time, bool) {
	if ns == nil || ns.Data == nil {
		return time.Time{}, false
	}
	raw, ok := ns.Data[delayResumeAtKey].(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
