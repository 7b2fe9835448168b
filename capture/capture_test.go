package capture

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

// fakeClock advances instantly and records every sleep it was asked for.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testOrchestrator(cfg Config) (*Orchestrator, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg.Clock = clock
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(nil, cfg), clock
}

func TestLadder_ShortCircuitsOnPoll(t *testing.T) {
	// WHAT: A document appearing mid-poll returns immediately; the
	// network-idle wait and the settle delays never run.
	// WHY: Most captures land in the first seconds; the full ladder is a
	// worst-case budget, not a fixed cost.
	o, clock := testOrchestrator(Config{PollCount: 10, PollInterval: 100 * time.Millisecond})

	want := &Document{Bytes: []byte("%PDF-1.4"), Strategy: StrategyResponseEvent}
	calls := 0
	poll := func() *Document {
		calls++
		if calls == 3 {
			return want
		}
		return nil
	}
	idleCalled := false

	got := o.ladder(context.Background(), poll, func() { idleCalled = true })
	if got != want {
		t.Fatalf("ladder = %+v, want the committed document", got)
	}
	if idleCalled {
		t.Error("idle wait ran despite an early document")
	}
	if len(clock.sleeps) != 2 {
		t.Errorf("slept %d times, want 2", len(clock.sleeps))
	}
}

func TestLadder_RunsAllStagesWhenEmpty(t *testing.T) {
	// WHAT: With no document the ladder runs every poll, the idle wait,
	// and both trailing delays, then returns nil.
	// WHY: The stage sequence is the passive-capture budget; skipping a
	// stage silently shortens it.
	o, clock := testOrchestrator(Config{
		PollCount:    5,
		PollInterval: 100 * time.Millisecond,
		SettleDelay:  3 * time.Second,
		GraceDelay:   2 * time.Second,
	})

	polls := 0
	idleCalled := false
	got := o.ladder(context.Background(),
		func() *Document { polls++; return nil },
		func() { idleCalled = true })

	if got != nil {
		t.Fatalf("ladder = %+v, want nil", got)
	}
	if !idleCalled {
		t.Error("idle wait never ran")
	}
	// 5 poll sleeps, then settle and grace.
	if len(clock.sleeps) != 7 {
		t.Fatalf("slept %d times, want 7", len(clock.sleeps))
	}
	if clock.sleeps[5] != 3*time.Second || clock.sleeps[6] != 2*time.Second {
		t.Errorf("trailing sleeps = %v, want settle then grace", clock.sleeps[5:])
	}
	// Polls: one per loop iteration, one before each trailing delay, one final.
	if polls != 8 {
		t.Errorf("polled %d times, want 8", polls)
	}
}

func TestLadder_DocumentDuringIdleWait(t *testing.T) {
	// WHAT: A document committed while the idle wait runs is picked up by
	// the first trailing poll, before any settle delay.
	// WHY: The idle wait exists exactly to give late POST bodies time to
	// land; its result must be consumed without extra waiting.
	o, clock := testOrchestrator(Config{PollCount: 2, PollInterval: 100 * time.Millisecond})

	var committed *Document
	want := &Document{Bytes: []byte("%PDF-1.4"), Strategy: StrategyNetworkEvent}

	got := o.ladder(context.Background(),
		func() *Document { return committed },
		func() { committed = want })

	if got != want {
		t.Fatalf("ladder = %+v, want the committed document", got)
	}
	if len(clock.sleeps) != 2 {
		t.Errorf("slept %d times, want only the poll sleeps, got %v", len(clock.sleeps), clock.sleeps)
	}
}

func TestLadder_CancelledContext(t *testing.T) {
	// WHAT: A cancelled context stops the ladder at the next sleep with
	// one final poll.
	// WHY: The HTTP budget bounds the whole request; the ladder must not
	// keep a page alive past it.
	o, clock := testOrchestrator(Config{PollCount: 50, PollInterval: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	polls := 0
	got := o.ladder(ctx, func() *Document { polls++; return nil }, func() {
		t.Error("idle wait ran on a cancelled context")
	})
	if got != nil {
		t.Fatalf("ladder = %+v, want nil", got)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("slept %v on a cancelled context", clock.sleeps)
	}
	if polls != 2 {
		t.Errorf("polled %d times, want 2", polls)
	}
}
