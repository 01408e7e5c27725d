package workflow

import (
	"context"
	"time"
)

// Typing simulation: a scripted message "takes" a base delay plus a
// per-character increment, capped so long messages do not stall a batch.
const (
	typingBaseDelay    = 800 * time.Millisecond
	typingPerCharDelay = 35 * time.Millisecond
	typingMaxDelay     = 4 * time.Second
)

func typingDelay(message string) time.Duration {
	d := typingBaseDelay + time.Duration(len(message))*typingPerCharDelay
	if d > typingMaxDelay {
		return typingMaxDelay
	}
	return d
}

// Sleeper pauses between side effects. Injectable so tests run without
// wall-clock waits.
type Sleeper func(ctx context.Context, d time.Duration) error

func stdSleeper(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
