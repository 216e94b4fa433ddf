// Package costgate pauses a scan until a human decides whether it may keep
// spending once its budget is exceeded.
package costgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoPendingPrompt is returned by Respond when no prompt is open for the scan.
var ErrNoPendingPrompt = errors.New("no pending cost limit prompt")

// Outcome is how a wait on a prompt ended.
type Outcome int

const (
	// OutcomeContinue means the operator allowed further spending.
	OutcomeContinue Outcome = iota
	// OutcomeStop means the operator asked to halt the scan.
	OutcomeStop
	// OutcomeUndecided means no decision arrived before the timeout, or the
	// prompt was replaced by a newer one.
	OutcomeUndecided
	// OutcomeCancelled means the waiting context was cancelled.
	OutcomeCancelled
)

// String returns the name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeStop:
		return "stop"
	case OutcomeUndecided:
		return "undecided"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Gate is a registry of single-use decision channels keyed by scan id.
type Gate struct {
	mu      sync.Mutex
	pending map[string]chan bool
}

// New creates an empty Gate.
func New() *Gate {
	return &Gate{pending: make(map[string]chan bool)}
}

// Open registers a prompt for scanID and returns the channel its decision
// will arrive on. An existing prompt for the same id is replaced and its
// channel closed, which its waiter observes as OutcomeUndecided.
func (g *Gate) Open(scanID string) <-chan bool {
	ch := make(chan bool, 1)

	g.mu.Lock()
	defer g.mu.Unlock()

	if old, ok := g.pending[scanID]; ok {
		close(old)
	}
	g.pending[scanID] = ch
	return ch
}

// Respond delivers decision (true = continue, false = stop) to the prompt
// open for scanID and removes it. It fails with ErrNoPendingPrompt when the
// prompt was already answered, never opened, or released.
func (g *Gate) Respond(scanID string, decision bool) error {
	g.mu.Lock()
	ch, ok := g.pending[scanID]
	if ok {
		delete(g.pending, scanID)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w for scan %s", ErrNoPendingPrompt, scanID)
	}

	// Buffered with capacity one and only ever sent to once.
	ch <- decision
	return nil
}

// Release drops any prompt open for scanID without answering it.
func (g *Gate) Release(scanID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, scanID)
}

// Pending reports whether a prompt is open for scanID.
func (g *Gate) Pending(scanID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[scanID]
	return ok
}

// Await blocks until a decision arrives on ch, timeout elapses, or ctx is
// done. A timeout of zero waits without limit.
func Await(ctx context.Context, ch <-chan bool, timeout time.Duration) Outcome {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case decision, ok := <-ch:
		switch {
		case !ok:
			return OutcomeUndecided
		case decision:
			return OutcomeContinue
		default:
			return OutcomeStop
		}
	case <-expired:
		return OutcomeUndecided
	case <-ctx.Done():
		return OutcomeCancelled
	}
}
