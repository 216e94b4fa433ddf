package costgate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGate_RespondDeliversDecision(t *testing.T) {
	g := New()
	ch := g.Open("scan-1")

	if !g.Pending("scan-1") {
		t.Fatal("prompt should be pending after Open")
	}

	done := make(chan Outcome, 1)
	go func() {
		done <- Await(context.Background(), ch, time.Second)
	}()

	if err := g.Respond("scan-1", true); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}

	if got := <-done; got != OutcomeContinue {
		t.Errorf("outcome = %s, want continue", got)
	}
	if g.Pending("scan-1") {
		t.Error("prompt should be consumed after Respond")
	}
}

func TestGate_StopDecision(t *testing.T) {
	g := New()
	ch := g.Open("scan-1")

	if err := g.Respond("scan-1", false); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if got := Await(context.Background(), ch, time.Second); got != OutcomeStop {
		t.Errorf("outcome = %s, want stop", got)
	}
}

func TestGate_SecondRespondFails(t *testing.T) {
	g := New()
	g.Open("scan-1")

	if err := g.Respond("scan-1", true); err != nil {
		t.Fatalf("first Respond failed: %v", err)
	}

	err := g.Respond("scan-1", false)
	if !errors.Is(err, ErrNoPendingPrompt) {
		t.Errorf("second Respond error = %v, want ErrNoPendingPrompt", err)
	}
}

func TestGate_RespondUnknownScan(t *testing.T) {
	g := New()

	err := g.Respond("never-opened", true)
	if !errors.Is(err, ErrNoPendingPrompt) {
		t.Errorf("Respond error = %v, want ErrNoPendingPrompt", err)
	}

	g.Open("scan-a")
	if err := g.Respond("scan-b", true); !errors.Is(err, ErrNoPendingPrompt) {
		t.Errorf("Respond with wrong id error = %v, want ErrNoPendingPrompt", err)
	}
}

func TestGate_ReleaseDropsPrompt(t *testing.T) {
	g := New()
	g.Open("scan-1")
	g.Release("scan-1")

	if g.Pending("scan-1") {
		t.Error("prompt should not be pending after Release")
	}
	if err := g.Respond("scan-1", true); !errors.Is(err, ErrNoPendingPrompt) {
		t.Errorf("Respond after Release error = %v, want ErrNoPendingPrompt", err)
	}
}

func TestGate_OpenReplacesPrevious(t *testing.T) {
	g := New()
	first := g.Open("scan-1")
	second := g.Open("scan-1")

	if got := Await(context.Background(), first, time.Second); got != OutcomeUndecided {
		t.Errorf("replaced prompt outcome = %s, want undecided", got)
	}

	if err := g.Respond("scan-1", true); err != nil {
		t.Fatalf("Respond failed: %v", err)
	}
	if got := Await(context.Background(), second, time.Second); got != OutcomeContinue {
		t.Errorf("current prompt outcome = %s, want continue", got)
	}
}

func TestAwait_Timeout(t *testing.T) {
	g := New()
	ch := g.Open("scan-1")

	start := time.Now()
	got := Await(context.Background(), ch, 20*time.Millisecond)
	if got != OutcomeUndecided {
		t.Errorf("outcome = %s, want undecided", got)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Await returned before the timeout")
	}
}

func TestAwait_Cancelled(t *testing.T) {
	g := New()
	ch := g.Open("scan-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := Await(ctx, ch, time.Minute); got != OutcomeCancelled {
		t.Errorf("outcome = %s, want cancelled", got)
	}
}
