package notify

import "testing"

func TestBroker_PublishReachesAllSubscribers(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe()
	c := b.Subscribe()
	defer b.Unsubscribe(c)

	b.Publish(TransitionEvent{LeadID: "l1", Edge: "output-0"})

	for _, ch := range []chan TransitionEvent{a, c} {
		select {
		case ev := <-ch:
			if ev.LeadID != "l1" {
				t.Fatalf("unexpected event %+v", ev)
			}
			if ev.At.IsZero() {
				t.Fatalf("expected timestamp to be set")
			}
		default:
			t.Fatalf("expected event on subscriber channel")
		}
	}
	b.Unsubscribe(a)
}

func TestBroker_DropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill past the buffer; Publish must not block.
	for i := 0; i < 100; i++ {
		b.Publish(TransitionEvent{LeadID: "l1"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("expected full buffer, got %d/%d", len(ch), cap(ch))
	}
}

func TestBroker_UnsubscribedChannelIsClosed(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}
