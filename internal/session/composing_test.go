package session

import (
	"testing"
	"time"
)

// manualTimer captures scheduled callbacks so tests can fire them explicitly.
type manualTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	was := m.stopped
	m.stopped = true
	return !was
}

type manualScheduler struct {
	timers []*manualTimer
}

func (s *manualScheduler) factory(d time.Duration, fn func()) Timer {
	tm := &manualTimer{d: d, fn: fn}
	s.timers = append(s.timers, tm)
	return tm
}

func newTestTracker(cooldown time.Duration) (*ComposingTracker, *manualScheduler, *time.Time) {
	now := time.Unix(1700000000, 0)
	sched := &manualScheduler{}
	tr := NewComposingTracker(cooldown)
	tr.clock = func() time.Time { return now }
	tr.newTimer = sched.factory
	return tr, sched, &now
}

func TestGate_IdleFiresImmediately(t *testing.T) {
	tr, sched, _ := newTestTracker(15 * time.Second)

	fired := 0
	if deferred := tr.Gate("chat-1", func() { fired++ }); deferred {
		t.Fatalf("idle conversation must not defer")
	}
	if fired != 1 {
		t.Fatalf("expected immediate fire, got %d", fired)
	}
	if len(sched.timers) != 0 {
		t.Fatalf("no timer should be scheduled when idle")
	}
}

func TestGate_ComposingDefersExactlyOnce(t *testing.T) {
	tr, sched, now := newTestTracker(15 * time.Second)

	tr.SetComposing("chat-1")
	*now = now.Add(5 * time.Second)

	fired := 0
	if deferred := tr.Gate("chat-1", func() { fired++ }); !deferred {
		t.Fatalf("composing conversation must defer")
	}
	if fired != 0 {
		t.Fatalf("no send may happen while composing")
	}
	if len(sched.timers) != 1 {
		t.Fatalf("expected exactly one scheduled re-check, got %d", len(sched.timers))
	}

	// remaining cooldown (10s) + safety margin (2s)
	if want := 12 * time.Second; sched.timers[0].d != want {
		t.Fatalf("expected re-check after %s, got %s", want, sched.timers[0].d)
	}

	// Cooldown elapses, the re-check fires the deferred action exactly once.
	*now = now.Add(12 * time.Second)
	sched.timers[0].fn()
	if fired != 1 {
		t.Fatalf("expected exactly one deferred send, got %d", fired)
	}
}

func TestGate_RecheckYieldsWhileStillComposing(t *testing.T) {
	tr, sched, now := newTestTracker(15 * time.Second)

	tr.SetComposing("chat-1")
	fired := 0
	tr.Gate("chat-1", func() { fired++ })

	// Human keeps typing: the window restarts before the re-check fires.
	*now = now.Add(10 * time.Second)
	tr.SetComposing("chat-1")

	*now = now.Add(7 * time.Second) // first window would have expired; second has not
	sched.timers[0].fn()
	if fired != 0 {
		t.Fatalf("re-check must yield while a newer window is live, got %d fires", fired)
	}
}

func TestGate_PausedClearsEarly(t *testing.T) {
	tr, sched, _ := newTestTracker(15 * time.Second)

	tr.SetComposing("chat-1")
	fired := 0
	tr.Gate("chat-1", func() { fired++ })

	// The human stopped typing before the cooldown elapsed; the re-check
	// observes IDLE and proceeds.
	tr.SetPaused("chat-1")
	sched.timers[0].fn()
	if fired != 1 {
		t.Fatalf("expected deferred send after paused, got %d", fired)
	}
}

func TestIsComposing_ExpiresAfterCooldown(t *testing.T) {
	tr, _, now := newTestTracker(15 * time.Second)

	tr.SetComposing("chat-1")
	if !tr.IsComposing("chat-1") {
		t.Fatalf("expected composing")
	}
	*now = now.Add(15 * time.Second)
	if tr.IsComposing("chat-1") {
		t.Fatalf("expected cooldown expiry")
	}
}
