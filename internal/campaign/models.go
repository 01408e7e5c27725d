package campaign

import (
	"errors"
	"time"
)

type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Campaign owns a graph of typed steps that leads progress through.
//
// Rate-limit columns are campaign-level fallbacks; the entry node's
// configuration takes priority (see ResolveRateLimits).
type Campaign struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Status      Status `json:"status"`

	// AutoEngage enables the outbound dispatcher for this campaign.
	AutoEngage bool `json:"auto_engage"`

	// GatewaySession is the messaging gateway session used for sends.
	GatewaySession string `json:"gateway_session"`

	MaxLeadsPerDay    int `json:"max_leads_per_day"`
	BatchSize         int `json:"batch_size"`
	DelayBetweenLeads int `json:"delay_between_leads_ms"`

	Graph Graph `json:"graph"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Node is one typed step. Config is step-type-specific and owned by the
// executor for that type.
type Node struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Edge is a directed, outcome-labeled connection between two nodes.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node types. Keep these stable; they are stored in campaign graphs.
const (
	NodeTypeStart     = "start"
	NodeTypeMessage   = "message"
	NodeTypeAIAgent   = "ai_agent"
	NodeTypeWaitReply = "wait_reply"
	NodeTypeCondition = "condition"
	NodeTypeDelay     = "delay"
	NodeTypeHandoff   = "handoff"
)

// Reserved edge labels.
const (
	EdgeOutput0  = "output-0"
	EdgeFallback = "fallback"
	EdgeElse     = "else"
)

var ErrNoEntryNode = errors.New("campaign: graph has no entry node")

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// EntryNode returns the single designated entry node.
func (g Graph) EntryNode() (Node, error) {
	for _, n := range g.Nodes {
		if n.Type == NodeTypeStart {
			return n, nil
		}
	}
	return Node{}, ErrNoEntryNode
}

// NextNode follows the edge labeled label out of node from. A missing edge
// is an implicit exit, reported as ok=false.
func (g Graph) NextNode(from, label string) (Node, bool) {
	for _, e := range g.Edges {
		if e.From != from || e.Label != label {
			continue
		}
		return g.Node(e.To)
	}
	return Node{}, false
}

// RateLimits is the dispatcher's effective pacing configuration.
type RateLimits struct {
	MaxLeadsPerDay int
	BatchSize      int
	DelayBetween   time.Duration
}

// Hard-coded floor configuration; used when neither the entry node nor the
// campaign columns specify a value.
const (
	DefaultMaxLeadsPerDay = 50
	DefaultBatchSize      = 10
	DefaultDelayMs        = 5000
)

// ResolveRateLimits resolves the dispatcher pacing with priority:
// entry-node config > campaign columns > hard defaults.
func (c Campaign) ResolveRateLimits() RateLimits {
	out := RateLimits{
		MaxLeadsPerDay: DefaultMaxLeadsPerDay,
		BatchSize:      DefaultBatchSize,
		DelayBetween:   DefaultDelayMs * time.Millisecond,
	}

	if c.MaxLeadsPerDay > 0 {
		out.MaxLeadsPerDay = c.MaxLeadsPerDay
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	if c.DelayBetweenLeads > 0 {
		out.DelayBetween = time.Duration(c.DelayBetweenLeads) * time.Millisecond
	}

	entry, err := c.Graph.EntryNode()
	if err != nil {
		return out
	}
	if v, ok := configInt(entry.Config, "maxLeadsPerDay"); ok && v > 0 {
		out.MaxLeadsPerDay = v
	}
	if v, ok := configInt(entry.Config, "batchSize"); ok && v > 0 {
		out.BatchSize = v
	}
	if v, ok := configInt(entry.Config, "delayBetweenLeads"); ok && v > 0 {
		out.DelayBetween = time.Duration(v) * time.Millisecond
	}
	return out
}

// configInt reads an integer from node config, tolerating the float64 shape
// JSON decoding produces.
func configInt(cfg map[string]any, key string) (int, bool) {
	if cfg == nil {
		return 0, false
	}
	switch v := cfg[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
