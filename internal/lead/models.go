package lead

import "time"

type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusContacted  Status = "contacted"
	StatusInterested Status = "interested"
	StatusQualified  Status = "qualified"
	StatusHandedOff  Status = "handed_off"
	StatusFinished   Status = "finished"
	StatusError      Status = "error"
)

// ConsumedToday is the set of statuses that count against a campaign's
// daily dispatch quota: once a lead reaches any of these, a dispatch slot
// has been spent on it.
var ConsumedToday = []Status{
	StatusProcessing,
	StatusContacted,
	StatusInterested,
	StatusQualified,
	StatusHandedOff,
	StatusFinished,
}

// EngagedStatuses are the statuses in which a lead still reacts to
// inbound conversation events. Handed-off, finished and errored leads
// are routed to humans (or retried explicitly), never auto-resumed.
var EngagedStatuses = []Status{
	StatusNew,
	StatusProcessing,
	StatusContacted,
	StatusInterested,
	StatusQualified,
}

// NodeState is the opaque per-step running state, owned by whichever node
// executor last ran. Status WAITING_REPLY (or any other open-wait marker)
// must reference the lead's current node.
type NodeState struct {
	Status    string         `json:"status"`
	NodeID    string         `json:"node_id"`
	EnteredAt time.Time      `json:"entered_at"`
	Data      map[string]any `json:"data,omitempty"`
}

// Node-state status markers.
const (
	NodeStateWaitingReply = "WAITING_REPLY"
	NodeStateDelaying     = "DELAYING"
)

// Lead is a contact progressing through exactly one campaign graph.
//
// Invariants:
//   - At most one CurrentNodeID is active at any time.
//   - While NodeState denotes an open wait, NodeState.NodeID equals
//     CurrentNodeID.
//   - Status and CurrentNodeID are mutated only by the orchestrator, except
//     for the dispatcher's new->processing pre-claim.
type Lead struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	CampaignID  string `json:"campaign_id"`

	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`

	Status        Status     `json:"status"`
	CurrentNodeID string     `json:"current_node_id,omitempty"`
	NodeState     *NodeState `json:"node_state,omitempty"`

	LastUserMessageAt *time.Time `json:"last_user_message_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WaitingAt reports whether the lead has an open wait parked on nodeID.
func (l Lead) WaitingAt(nodeID string) bool {
	return l.NodeState != nil &&
		l.NodeState.NodeID == nodeID &&
		(l.NodeState.Status == NodeStateWaitingReply || l.NodeState.Status == NodeStateDelaying)
}
