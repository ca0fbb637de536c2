package web

// gate.go bounds concurrent rebuilds. A rebuild reads every sheet and
// compiles the whole dataset, so a second request waits up to maxWait for
// the running one and then fails with ErrRebuildBusy. Shutdown drains the
// gate so a rebuild is never cut off halfway.

import (
	"context"
	"errors"
	"time"
)

// ErrRebuildBusy is returned when a rebuild slot does not free up in time.
var ErrRebuildBusy = errors.New("a rebuild is already running")

// defaultRebuildWait is how long a rebuild request queues for a slot.
const defaultRebuildWait = 30 * time.Second

type rebuildGate struct {
	slots   chan struct{}
	maxWait time.Duration
}

func newRebuildGate(slots int, maxWait time.Duration) *rebuildGate {
	if slots <= 0 {
		slots = 1
	}
	if maxWait <= 0 {
		maxWait = defaultRebuildWait
	}
	return &rebuildGate{slots: make(chan struct{}, slots), maxWait: maxWait}
}

// acquire takes a slot. The caller must release it.
func (g *rebuildGate) acquire(ctx context.Context) error {
	timer := time.NewTimer(g.maxWait)
	defer timer.Stop()

	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrRebuildBusy
	}
}

func (g *rebuildGate) release() {
	<-g.slots
}

func (g *rebuildGate) active() int {
	return len(g.slots)
}

// drain blocks until no rebuild is running or ctx is done.
func (g *rebuildGate) drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for g.active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
