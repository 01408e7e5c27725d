package gateway

import (
	"context"
	"errors"
	"log/slog"

	"outreach-platform/internal/lead"
	"outreach-platform/internal/session"
	"outreach-platform/internal/workflow"
)

// Triggerer is the slice of the orchestrator the inbound pipeline needs.
type Triggerer interface {
	Trigger(ctx context.Context, leadID string, trig workflow.Trigger) error
}

// InboundService turns raw gateway events into workflow triggers.
//
// Pipeline for a message event:
//  1. drop our own outbound echoes (fromMe)
//  2. drop redeliveries (dedup by message ID)
//  3. resolve the engaged lead by phone; unknown senders are ignored
//  4. hold the trigger while the contact is still composing, then fire
type InboundService struct {
	dedup    *session.DedupRegister
	presence *session.ComposingTracker
	leads    lead.Repository
	orch     Triggerer
	log      *slog.Logger
}

func NewInboundService(
	dedup *session.DedupRegister,
	presence *session.ComposingTracker,
	leads lead.Repository,
	orch Triggerer,
	log *slog.Logger,
) *InboundService {
	if log == nil {
		log = slog.Default()
	}
	return &InboundService{dedup: dedup, presence: presence, leads: leads, orch: orch, log: log}
}

// HandleEvent dispatches one webhook event. Unknown event types are ignored;
// the gateway adds types over time and old deployments must not reject them.
func (s *InboundService) HandleEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventMessage:
		return s.handleMessage(ctx, ev)
	case EventPresenceUpdate:
		return s.handlePresence(ev)
	case EventSessionStatus:
		return s.handleSessionStatus(ev)
	case EventMessageAck:
		s.log.Debug("gateway event ignored", "event", string(ev.Type), "session", ev.Session)
		return nil
	default:
		s.log.Debug("unknown gateway event", "event", string(ev.Type), "session", ev.Session)
		return nil
	}
}

func (s *InboundService) handleMessage(ctx context.Context, ev Event) error {
	p, err := ev.messagePayload()
	if err != nil {
		return err
	}
	if p.FromMe {
		return nil
	}
	if !s.dedup.Observe(p.ID) {
		s.log.Debug("duplicate delivery dropped", "message_id", p.ID)
		return nil
	}

	phone := Phone(p.Conversation)
	if phone == "" {
		return errors.New("gateway: message without conversation")
	}

	l, err := s.leads.FindActiveByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			s.log.Debug("inbound from unknown contact ignored", "phone", phone)
			return nil
		}
		return err
	}

	trig := workflow.Trigger{
		Kind:       workflow.TriggerInboundMessage,
		MessageID:  p.ID,
		Body:       p.Body,
		OccurredAt: p.OccurredAt(),
	}

	// The gate may hold the trigger past this request's lifetime; detach it
	// from the HTTP request context but keep its values (request id logger).
	fireCtx := context.WithoutCancel(ctx)
	deferred := s.presence.Gate(p.Conversation, func() {
		if err := s.orch.Trigger(fireCtx, l.ID, trig); err != nil {
			s.log.Warn("inbound trigger failed", "lead_id", l.ID, "err", err)
		}
	})
	if deferred {
		s.log.Debug("inbound trigger held for composing contact", "lead_id", l.ID)
	}
	return nil
}

func (s *InboundService) handlePresence(ev Event) error {
	p, err := ev.presencePayload()
	if err != nil {
		return err
	}
	switch p.State {
	case PresenceComposing:
		s.presence.SetComposing(p.Conversation)
	case PresencePaused:
		s.presence.SetPaused(p.Conversation)
	}
	return nil
}

// handleSessionStatus surfaces gateway connection changes. A session that
// drops means every campaign bound to it stops sending; operators watch the
// logs for this.
func (s *InboundService) handleSessionStatus(ev Event) error {
	p, err := ev.sessionStatusPayload()
	if err != nil {
		return err
	}
	if p.Status == "" {
		s.log.Debug("gateway event ignored", "event", string(ev.Type), "session", ev.Session)
		return nil
	}
	s.log.Info("gateway session status changed", "session", ev.Session, "status", p.Status)
	return nil
}
