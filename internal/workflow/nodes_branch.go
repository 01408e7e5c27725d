package workflow

import (
	"context"

	"outreach-platform/internal/campaign"
	"outreach-platform/internal/lead"
)

// StartExecutor is the graph entry: a pure pass-through.
type StartExecutor struct{}

func (StartExecutor) Execute(_ context.Context, _ Input) (Result, error) {
	return Result{Outcome: OutcomeContinue, Edge: campaign.EdgeOutput0}, nil
}

// ConditionExecutor branches on a lead field. A satisfied predicate routes
// to output-0, anything else to the reserved else edge.
type ConditionExecutor struct{}

func (ConditionExecutor) Execute(_ context.Context, in Input) (Result, error) {
	field := configString(in.Node.Config, "field")
	if field == "" {
		return Result{}, &ConfigError{NodeID: in.Node.ID, Reason: "condition node has no field"}
	}

	rule := Rule{
		Match: configString(in.Node.Config, "match"),
		Value: configString(in.Node.Config, "value"),
	}
	if rule.Match == "" {
		rule.Match = MatchEquals
	}

	edge := campaign.EdgeElse
	if rule.Matches(normalizeInput(leadField(in.Lead, field))) {
		edge = campaign.EdgeOutput0
	}
	return Result{Outcome: OutcomeExited, Edge: edge, MarkExecuted: true}, nil
}

func leadField(l lead.Lead, field string) string {
	switch field {
	case "status":
		return string(l.Status)
	case "phone":
		return l.Phone
	case "name":
		return l.Name
	default:
		if l.NodeState != nil && l.NodeState.Data != nil {
			if s, ok := l.NodeState.Data[field].(string); ok {
				return s
			}
		}
		return ""
	}
}

// HandoffExecutor ends automation for the lead and flags it for a human.
type HandoffExecutor struct{}

func (HandoffExecutor) Execute(_ context.Context, in Input) (Result, error) {
	return Result{
		Outcome:      OutcomeExited,
		Edge:         campaign.EdgeOutput0,
		LeadStatus:   lead.StatusHandedOff,
		Output:       map[string]any{"reason": configString(in.Node.Config, "reason")},
		MarkExecuted: true,
	}, nil
}
