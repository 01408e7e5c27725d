package audit

import "time"

// Entry is an immutable, append-only record of an executed graph node. It
// feeds campaign analytics (which steps ran, for which leads, when).
//
// Invariants:
// - Entries are never updated or deleted.
// - workspace_id is required for tenancy isolation.
// - Writing is best-effort; do not block lead progression on audit failures.
type Entry struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`

	LeadID     string `json:"lead_id"`
	CampaignID string `json:"campaign_id"`
	NodeID     string `json:"node_id"`
	NodeType   string `json:"node_type"`

	// Edge is the outgoing edge taken, when the node transitioned.
	Edge string `json:"edge,omitempty"`

	// Detail carries step-specific data, e.g. the emitted item of a
	// multi-message node.
	Detail map[string]any `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
