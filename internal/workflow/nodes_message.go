package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"outreach-platform/internal/audit"
	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"

	"outreach-platform/pkg/logger"
)

// MessageExecutor sends the node's scripted messages in order, pacing each
// with a simulated typing delay. Every emitted item is recorded through the
// auditor before the next send starts, so a crash mid-sequence leaves a
// durable trail of what already went out. A failure on one item is recorded
// and must not prevent sending subsequent items.
type MessageExecutor struct {
	sender   Sender
	recorder Auditor
	sleep    Sleeper
	clock    func() time.Time
}

func NewMessageExecutor(sender Sender, recorder Auditor) *MessageExecutor {
	return &MessageExecutor{sender: sender, recorder: recorder, sleep: stdSleeper, clock: time.Now}
}

func (e *MessageExecutor) Execute(ctx context.Context, in Input) (Result, error) {
	session := in.Campaign.GatewaySession
	if session == "" {
		return Result{}, &ConfigError{NodeID: in.Node.ID, Reason: "campaign has no gateway session"}
	}
	messages := configStrings(in.Node.Config, "messages")
	if len(messages) == 0 {
		return Result{}, &ConfigError{NodeID: in.Node.ID, Reason: "message node has no messages"}
	}

	log := logger.From(ctx)
	sent := 0
	var sendErrors []string

	for i, msg := range messages {
		if err := e.sleep(ctx, typingDelay(msg)); err != nil {
			return Result{}, err
		}
		if err := e.sender.SendText(ctx, session, in.Lead.Phone, msg); err != nil {
			// Partial failure: keep going, the remaining items still go out.
			sendErrors = append(sendErrors, fmt.Sprintf("message %d: %v", i, err))
			log.Warn("scripted send failed",
				"lead_id", in.Lead.ID, "node_id", in.Node.ID, "index", i, "err", err)
			continue
		}
		sent++
		e.recordItem(ctx, in, i, msg, log)
	}

	out := map[string]any{"sent": sent, "total": len(messages)}
	if len(sendErrors) > 0 {
		out["send_errors"] = sendErrors
	}

	res := Result{
		Outcome:      OutcomeExited,
		Edge:         campaign.EdgeOutput0,
		Output:       out,
		MarkExecuted: sent > 0,
	}
	// First outbound contact promotes a freshly dispatched lead.
	if in.Lead.Status == lead.StatusProcessing || in.Lead.Status == lead.StatusNew {
		res.LeadStatus = lead.StatusContacted
	}
	return res, nil
}

// recordItem durably records one emitted message before the sequence moves
// on. Recording is best-effort, like all audit writes.
func (e *MessageExecutor) recordItem(ctx context.Context, in Input, index int, msg string, log *slog.Logger) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Append(ctx, audit.Entry{
		WorkspaceID: in.Lead.WorkspaceID,
		LeadID:      in.Lead.ID,
		CampaignID:  in.Campaign.ID,
		NodeID:      in.Node.ID,
		NodeType:    in.Node.Type,
		Detail:      map[string]any{"index": index, "message": msg},
	})
	if err != nil {
		log.Warn("emitted item not recorded",
			"lead_id", in.Lead.ID, "node_id", in.Node.ID, "index", index, "err", err)
	}
}

// AgentExecutor asks the content generator for a reply and sends it. The
// generator is an out-of-scope collaborator; a node reaching this executor
// without one configured is a configuration error.
type AgentExecutor struct {
	sender    Sender
	generator Generator
	sleep     Sleeper
}

func NewAgentExecutor(sender Sender, generator Generator) *AgentExecutor {
	return &AgentExecutor{sender: sender, generator: generator, sleep: stdSleeper}
}

func (e *AgentExecutor) Execute(ctx context.Context, in Input) (Result, error) {
	session := in.Campaign.GatewaySession
	if session == "" {
		return Result{}, &ConfigError{NodeID: in.Node.ID, Reason: "campaign has no gateway session"}
	}
	if e.generator == nil {
		return Result{}, &ConfigError{NodeID: in.Node.ID, Reason: "no content generator configured"}
	}

	prompt := configString(in.Node.Config, "prompt")
	reply, err := e.generator.GenerateReply(ctx, prompt, in.Lead.Phone, in.Trigger.Body)
	if err != nil {
		return Result{}, fmt.Errorf("generate reply: %w", err)
	}

	if err := e.sleep(ctx, typingDelay(reply)); err != nil {
		return Result{}, err
	}
	if err := e.sender.SendText(ctx, session, in.Lead.Phone, reply); err != nil {
		return Result{}, fmt.Errorf("send reply: %w", err)
	}

	return Result{
		Outcome:      OutcomeExited,
		Edge:         campaign.EdgeOutput0,
		Output:       map[string]any{"reply": reply},
		MarkExecuted: true,
	}, nil
}
