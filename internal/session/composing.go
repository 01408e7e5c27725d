package session

import (
	"sync"
	"time"
)

// ComposingTracker suppresses automated sends while a human is actively
// typing in a conversation.
//
// Per conversation it is a two-state machine: IDLE -> COMPOSING on a
// "composing" presence signal, back to IDLE on a "paused" signal or once
// the cooldown elapses. Triggers arriving while COMPOSING are deferred, not
// dropped: exactly one re-check is scheduled per suppressed trigger, and the
// re-check either fires the action (now IDLE) or yields to the check owned
// by a newer trigger (still COMPOSING).
type ComposingTracker struct {
	mu        sync.Mutex
	composing map[string]time.Time // conversation -> started at

	cooldown time.Duration
	margin   time.Duration

	clock    func() time.Time
	newTimer TimerFactory
}

const (
	DefaultComposingCooldown = 15 * time.Second

	// resumeSafetyMargin pads the deferred re-check past the cooldown edge
	// so the re-check observes the expired window rather than racing it.
	resumeSafetyMargin = 2 * time.Second
)

func NewComposingTracker(cooldown time.Duration) *ComposingTracker {
	if cooldown <= 0 {
		cooldown = DefaultComposingCooldown
	}
	return &ComposingTracker{
		composing: make(map[string]time.Time),
		cooldown:  cooldown,
		margin:    resumeSafetyMargin,
		clock:     time.Now,
		newTimer:  stdTimerFactory,
	}
}

// SetComposing marks a conversation as having an actively typing human.
// Repeated signals restart the cooldown window.
func (t *ComposingTracker) SetComposing(conversation string) {
	if conversation == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.composing[conversation] = t.clock()
}

// SetPaused clears the composing state immediately.
func (t *ComposingTracker) SetPaused(conversation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.composing, conversation)
}

// IsComposing reports whether the conversation is within a live composing
// window. Expired windows are cleared lazily.
func (t *ComposingTracker) IsComposing(conversation string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isComposingLocked(conversation)
}

// Gate runs fn immediately when the conversation is idle. When a human is
// composing it schedules a single deferred re-check after the remaining
// cooldown plus a safety margin and returns true. The deferred check fires
// fn at most once; if the conversation is composing again by then, the
// trigger that restarted the window owns the next check and this one does
// nothing.
func (t *ComposingTracker) Gate(conversation string, fn func()) (deferred bool) {
	t.mu.Lock()
	if !t.isComposingLocked(conversation) {
		t.mu.Unlock()
		fn()
		return false
	}

	startedAt := t.composing[conversation]
	remaining := t.cooldown - t.clock().Sub(startedAt)
	if remaining < 0 {
		remaining = 0
	}
	t.mu.Unlock()

	t.newTimer(remaining+t.margin, func() {
		t.mu.Lock()
		stillComposing := t.isComposingLocked(conversation)
		t.mu.Unlock()
		if stillComposing {
			return
		}
		fn()
	})
	return true
}

// Clear drops all composing state. Intended for tests.
func (t *ComposingTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.composing = make(map[string]time.Time)
}

func (t *ComposingTracker) isComposingLocked(conversation string) bool {
	startedAt, ok := t.composing[conversation]
	if !ok {
		return false
	}
	if t.clock().Sub(startedAt) >= t.cooldown {
		delete(t.composing, conversation)
		return false
	}
	return true
}
