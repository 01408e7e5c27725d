package workflow

import (
	"fmt"

	"outreach-platform/internal/campaign"
)

// Registry dispatches node types to their executors. The set is closed at
// construction; unknown node types are an error, not a silent skip.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds the default executor set. The recorder receives one
// entry per emitted scripted message; nil disables per-item records.
func NewRegistry(sender Sender, generator Generator, recorder Auditor) *Registry {
	return &Registry{executors: map[string]Executor{
		campaign.NodeTypeStart:     StartExecutor{},
		campaign.NodeTypeMessage:   NewMessageExecutor(sender, recorder),
		campaign.NodeTypeAIAgent:   NewAgentExecutor(sender, generator),
		campaign.NodeTypeWaitReply: NewWaitReplyExecutor(),
		campaign.NodeTypeCondition: ConditionExecutor{},
		campaign.NodeTypeDelay:     NewDelayExecutor(),
		campaign.NodeTypeHandoff:   HandoffExecutor{},
	}}
}

// Register replaces or adds the executor for a node type.
func (r *Registry) Register(nodeType string, e Executor) {
	r.executors[nodeType] = e
}

// For resolves the executor for a node type.
func (r *Registry) For(nodeType string) (Executor, error) {
	e, ok := r.executors[nodeType]
	if !ok {
		return nil, fmt.Errorf("no executor for node type %q", nodeType)
	}
	return e, nil
}
