package workflow

import (
	"context"
	"fmt"
	"time"

	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
)

// Outcome is the terminal result of one executor invocation.
type Outcome string

const (
	// OutcomeContinue advances immediately along the result edge. Used by
	// pass-through steps.
	OutcomeContinue Outcome = "CONTINUE"

	// OutcomeExited transitions to the named edge now.
	OutcomeExited Outcome = "EXITED"

	// OutcomeAwaiting suspends the lead: the node state is persisted and the
	// step is re-entered on a later, independent trigger.
	OutcomeAwaiting Outcome = "AWAITING_ASYNC"
)

// TriggerKind identifies what woke the orchestrator up for a lead.
type TriggerKind string

const (
	TriggerInboundMessage TriggerKind = "inbound_message"
	TriggerDispatch       TriggerKind = "dispatch"
	TriggerResume         TriggerKind = "resume"
	TriggerManual         TriggerKind = "manual"
)

// Trigger carries the event that caused this invocation. Body and OccurredAt
// are only set for inbound messages; OccurredAt is the source's own timestamp
// and may be zero when the source does not report one.
type Trigger struct {
	Kind       TriggerKind
	MessageID  string
	Body       string
	OccurredAt time.Time
}

// Input is everything an executor may inspect for one step.
type Input struct {
	Lead     lead.Lead
	Campaign campaign.Campaign
	Node     campaign.Node
	Graph    campaign.Graph
	Trigger  Trigger
}

// Result is the transition decision produced by an executor.
type Result struct {
	Outcome Outcome

	// Edge names the outgoing edge for OutcomeExited/OutcomeContinue.
	Edge string

	// NodeState is persisted for OutcomeAwaiting; the executor owns its shape.
	NodeState *lead.NodeState

	// LeadStatus, when set, updates the lead's status as part of the step.
	LeadStatus lead.Status

	// Output is surfaced to observers; never read back by executors.
	Output map[string]any

	// MarkExecuted records the step in the analytics audit trail.
	MarkExecuted bool
}

// Executor is the polymorphic unit of work for one graph step type.
type Executor interface {
	Execute(ctx context.Context, in Input) (Result, error)
}

// ConfigError marks a step whose configuration is invalid (e.g. missing
// gateway session). It is surfaced to observers as a distinct signal and is
// not retried automatically.
type ConfigError struct {
	NodeID string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node %s: configuration error: %s", e.NodeID, e.Reason)
}

// Sender delivers outbound messages through the gateway. Out-of-scope
// collaborator; implementations live at the edges.
type Sender interface {
	SendText(ctx context.Context, session, to, body string) error
}

// Generator produces AI reply content for ai_agent steps. Out-of-scope
// collaborator.
type Generator interface {
	GenerateReply(ctx context.Context, prompt, conversation, input string) (string, error)
}
