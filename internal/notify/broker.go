package notify

import (
	"sync"
	"time"
)

// TransitionEvent is emitted to observers whenever a lead moves (or fails to
// move) through its campaign graph. Used for UI/monitoring, not for
// correctness.
type TransitionEvent struct {
	LeadID     string         `json:"lead_id"`
	CampaignID string         `json:"campaign_id"`
	FromNode   string         `json:"from_node,omitempty"`
	ToNode     string         `json:"to_node,omitempty"`
	Edge       string         `json:"edge,omitempty"`
	Status     string         `json:"status,omitempty"`
	Output     map[string]any `json:"output,omitempty"`

	// Error carries executor/configuration failures; empty for normal moves.
	Error string `json:"error,omitempty"`
	// ConfigError distinguishes misconfiguration from runtime failures.
	ConfigError bool `json:"config_error,omitempty"`

	At time.Time `json:"at"`
}

// Broker fans transition events out to subscribers. Slow subscribers that
// have a full buffer are skipped (their event is dropped) to prevent one
// slow client from blocking publishers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan TransitionEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan TransitionEvent]struct{})}
}

// Subscribe returns a channel receiving future events. The caller must call
// Unsubscribe when done.
func (b *Broker) Subscribe() chan TransitionEvent {
	ch := make(chan TransitionEvent, 64) // Buffer to avoid blocking publishers.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan TransitionEvent) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Publish delivers ev to all subscribers, dropping it for any whose buffer
// is full.
func (b *Broker) Publish(ev TransitionEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
