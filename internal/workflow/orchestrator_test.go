package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
	"outreach-platform/internal/lock"
	"outreach-platform/internal/notify"
)

type capturedEvents struct {
	mu     sync.Mutex
	events []notify.TransitionEvent
}

func (c *capturedEvents) Publish(ev notify.TransitionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturedEvents) all() []notify.TransitionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.TransitionEvent, len(c.events))
	copy(out, c.events)
	return out
}

type harness struct {
	leads     *lead.MemoryRepo
	campaigns *campaign.MemoryRepo
	locker    *lock.MemoryLocker
	sender    *fakeSender
	events    *capturedEvents
	audit     *audit.MemoryRepo
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		leads:     lead.NewMemoryRepo(),
		campaigns: campaign.NewMemoryRepo(),
		locker:    lock.NewMemoryLocker(),
		sender:    &fakeSender{},
		events:    &capturedEvents{},
		audit:     audit.NewMemoryRepo(),
	}

	auditor := audit.NewService(h.audit)
	registry := NewRegistry(h.sender, fakeGenerator{reply: "resposta gerada"}, auditor)
	// Strip wall-clock pacing from the scripted-message executor.
	me := NewMessageExecutor(h.sender, auditor)
	me.sleep = noSleep
	registry.Register(campaign.NodeTypeMessage, me)

	h.orch = NewOrchestrator(
		h.leads, h.campaigns, registry, h.locker,
		h.events, auditor, 30*time.Second,
	)
	return h
}

// testGraph: start -> message -> wait_reply -[output-0]-> handoff
//                                          \-[fallback]-> message (retry)
func testCampaign() campaign.Campaign {
	return campaign.Campaign{
		ID:             "camp-1",
		WorkspaceID:    "ws-1",
		Status:         campaign.StatusActive,
		GatewaySession: "sess-1",
		Graph: campaign.Graph{
			Nodes: []campaign.Node{
				{ID: "s", Type: campaign.NodeTypeStart},
				{ID: "m", Type: campaign.NodeTypeMessage, Config: map[string]any{"messages": []any{"olá!", "posso te apresentar uma oferta?"}}},
				{ID: "w", Type: campaign.NodeTypeWaitReply, Config: map[string]any{
					"rules": []any{
						map[string]any{"match": "equals", "value": "sim", "edge": "output-0", "status": "interested"},
					},
				}},
				{ID: "h", Type: campaign.NodeTypeHandoff},
				{ID: "f", Type: campaign.NodeTypeMessage, Config: map[string]any{"messages": []any{"sem problemas, obrigado!"}}},
			},
			Edges: []campaign.Edge{
				{From: "s", To: "m", Label: "output-0"},
				{From: "m", To: "w", Label: "output-0"},
				{From: "w", To: "h", Label: "output-0"},
				{From: "w", To: "f", Label: "fallback"},
			},
		},
	}
}

func seedLead(t *testing.T, h *harness, status lead.Status) lead.Lead {
	t.Helper()
	h.campaigns.Put(testCampaign())
	l := lead.Lead{ID: "lead-1", WorkspaceID: "ws-1", CampaignID: "camp-1", Phone: "+5511999", Status: status}
	if err := h.leads.Create(context.Background(), l); err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return l
}

func TestTrigger_DispatchRunsUntilSuspension(t *testing.T) {
	h := newHarness(t)
	seedLead(t, h, lead.StatusProcessing)

	if err := h.orch.Trigger(context.Background(), "lead-1", Trigger{Kind: TriggerDispatch}); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	got, _ := h.leads.Get(context.Background(), "lead-1")
	if got.CurrentNodeID != "w" {
		t.Fatalf("expected lead parked on wait node, got %q", got.CurrentNodeID)
	}
	if got.NodeState == nil || got.NodeState.Status != lead.NodeStateWaitingReply || got.NodeState.NodeID != "w" {
		t.Fatalf("expected WAITING_REPLY node state, got %+v", got.NodeState)
	}
	if got.Status != lead.StatusContacted {
		t.Fatalf("expected contacted, got %q", got.Status)
	}
	if len(h.sender.sent) != 2 {
		t.Fatalf("expected 2 scripted sends, got %v", h.sender.sent)
	}
	// Two per-item records plus the node-level record.
	if len(h.audit.Entries()) != 3 {
		t.Fatalf("expected 3 audit entries for the message node, got %d", len(h.audit.Entries()))
	}
	if len(h.events.all()) == 0 {
		t.Fatalf("expected transition events")
	}
}

func TestTrigger_ResumeMatchedRuleRoutesToOutput0(t *testing.T) {
	h := newHarness(t)
	seedLead(t, h, lead.StatusProcessing)
	ctx := context.Background()

	_ = h.orch.Trigger(ctx, "lead-1", Trigger{Kind: TriggerDispatch})

	sentAt := time.Unix(1700000100, 0).UTC()
	trig := Trigger{Kind: TriggerInboundMessage, MessageID: "msg-1", Body: " SIM ", OccurredAt: sentAt}
	if err := h.orch.Trigger(ctx, "lead-1", trig); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := h.leads.Get(ctx, "lead-1")
	if got.Status != lead.StatusHandedOff {
		t.Fatalf("expected handoff after sim, got %q", got.Status)
	}
	if got.NodeState != nil {
		t.Fatalf("expected cleared node state, got %+v", got.NodeState)
	}
	if got.CurrentNodeID != "h" {
		t.Fatalf("expected handoff node, got %q", got.CurrentNodeID)
	}
	if got.LastUserMessageAt == nil || !got.LastUserMessageAt.Equal(sentAt) {
		t.Fatalf("expected LastUserMessageAt=%v, got %v", sentAt, got.LastUserMessageAt)
	}
}

func TestTrigger_ResumeUnmatchedRoutesToFallback(t *testing.T) {
	h := newHarness(t)
	seedLead(t, h, lead.StatusProcessing)
	ctx := context.Background()

	_ = h.orch.Trigger(ctx, "lead-1", Trigger{Kind: TriggerDispatch})
	sentBefore := len(h.sender.sent)

	if err := h.orch.Trigger(ctx, "lead-1", Trigger{Kind: TriggerInboundMessage, MessageID: "msg-1", Body: "não, obrigado"}); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := h.leads.Get(ctx, "lead-1")
	// Fallback message node is a dead end: implicit exit.
	if got.Status != lead.StatusFinished {
		t.Fatalf("expected finished, got %q", got.Status)
	}
	if len(h.sender.sent) != sentBefore+1 {
		t.Fatalf("expected one fallback send, got %v", h.sender.sent)
	}
}

func TestTrigger_ExecutorErrorMarksLeadWithoutMovingIt(t *testing.T) {
	h := newHarness(t)
	camp := testCampaign()
	camp.GatewaySession = "" // message node becomes a configuration error
	h.campaigns.Put(camp)
	_ = h.leads.Create(context.Background(), lead.Lead{ID: "lead-1", WorkspaceID: "ws-1", CampaignID: "camp-1", Phone: "+5511999", Status: lead.StatusProcessing})

	if err := h.orch.Trigger(context.Background(), "lead-1", Trigger{Kind: TriggerDispatch}); err != nil {
		t.Fatalf("trigger should isolate executor errors, got %v", err)
	}

	got, _ := h.leads.Get(context.Background(), "lead-1")
	if got.Status != lead.StatusError || got.LastError == "" {
		t.Fatalf("expected error flag, got %+v", got)
	}
	// Position untouched: the failing step may be retried.
	if got.CurrentNodeID != "m" {
		t.Fatalf("expected lead to remain on the message node, got %q", got.CurrentNodeID)
	}

	events := h.events.all()
	last := events[len(events)-1]
	if last.Error == "" || !last.ConfigError {
		t.Fatalf("expected a config-error event, got %+v", last)
	}
}

func TestTrigger_LockContentionIsASilentSkip(t *testing.T) {
	h := newHarness(t)
	seedLead(t, h, lead.StatusNew)
	ctx := context.Background()

	// A concurrent invocation holds the lead.
	_, ok, _ := h.locker.Acquire(ctx, lock.WorkflowKey("lead-1"), time.Minute)
	if !ok {
		t.Fatalf("pre-acquire failed")
	}

	if err := h.orch.Trigger(ctx, "lead-1", Trigger{Kind: TriggerDispatch}); err != nil {
		t.Fatalf("contention must not error, got %v", err)
	}

	got, _ := h.leads.Get(ctx, "lead-1")
	if got.Status != lead.StatusNew || got.CurrentNodeID != "" {
		t.Fatalf("contended trigger must not mutate the lead, got %+v", got)
	}
	if len(h.sender.sent) != 0 {
		t.Fatalf("contended trigger must not send, got %v", h.sender.sent)
	}
}

func TestTrigger_WaitNodeIgnoresNonMessageWakeups(t *testing.T) {
	h := newHarness(t)
	seedLead(t, h, lead.StatusProcessing)
	ctx := context.Background()

	_ = h.orch.Trigger(ctx, "lead-1", Trigger{Kind: TriggerDispatch})
	if err := h.orch.Trigger(ctx, "lead-1", Trigger{Kind: TriggerResume}); err != nil {
		t.Fatalf("resume: %v", err)
	}

	got, _ := h.leads.Get(ctx, "lead-1")
	if got.CurrentNodeID != "w" || got.NodeState == nil {
		t.Fatalf("non-message wakeup must keep the lead parked, got %+v", got)
	}
}
