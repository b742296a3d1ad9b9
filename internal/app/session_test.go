package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestSubmitTwiceRecordsOneAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := h.session(t, "u1")

	first, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := session.Submit(ctx)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.AttemptID != second.AttemptID {
		t.Fatalf("second submit must return the recorded result")
	}
	if calls, recorded := h.ledger.stats(); calls != 1 || recorded != 1 {
		t.Fatalf("expected one ledger write, got calls=%d recorded=%d", calls, recorded)
	}
}

func TestSubmitRacingExpiryRecordsOneAttempt(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t)
		ctx := context.Background()
		if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
			t.Fatalf("start: %v", err)
		}
		session := h.session(t, "u1")

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); _, _ = session.Submit(ctx) }()
		go func() { defer wg.Done(); _, _ = session.Submit(ctx) }()
		go func() { defer wg.Done(); h.clock.Add(10 * time.Minute) }()
		wg.Wait()
		waitDone(t, session)

		if _, recorded := h.ledger.stats(); recorded != 1 {
			t.Fatalf("run %d: expected exactly one attempt, got %d", i, recorded)
		}
		if session.State() != domain.StateCompleted {
			t.Fatalf("run %d: expected completed, got %s", i, session.State())
		}
	}
}

func TestManualSubmitFailureKeepsSessionInProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.service.SelectAnswer(ctx, "u1", "5", "Q1", 0); err != nil {
		t.Fatalf("answer: %v", err)
	}

	h.ledger.failNext(1)
	_, err := h.service.Submit(ctx, "u1", "5")
	if !errors.Is(err, domain.ErrSubmissionFailed) || !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected submission failure wrapping the ledger error, got %v", err)
	}

	snap, err := h.service.Snapshot(ctx, "u1", "5")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.State != domain.StateInProgress || snap.Answers["Q1"] != 0 || snap.LastError == "" {
		t.Fatalf("expected in-progress session with answers kept, got %+v", snap)
	}
	if calls, _ := h.ledger.stats(); calls != 1 {
		t.Fatalf("manual submit must not retry, got %d calls", calls)
	}

	// the user can keep answering and retry
	if _, err := h.service.SelectAnswer(ctx, "u1", "5", "Q2", 2); err != nil {
		t.Fatalf("answer after failure: %v", err)
	}
	result, err := h.service.Submit(ctx, "u1", "5")
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if result.CorrectCount != 2 || result.ScorePercent != 100 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestTimerSubmitRetriesLedgerWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := h.session(t, "u1")

	h.ledger.failNext(2)
	h.clock.Add(10 * time.Minute)
	waitDone(t, session)

	calls, recorded := h.ledger.stats()
	if calls != 3 || recorded != 1 {
		t.Fatalf("expected two retries then success, got calls=%d recorded=%d", calls, recorded)
	}
	if got := session.Result().TimeTakenSeconds; got != 600 {
		t.Fatalf("expected time taken capped at 600, got %d", got)
	}
}

func TestTimerSubmitExhaustedFreezesAnswers(t *testing.T) {
	h := newHarness(t, WithRetryPolicy(RetryPolicy{AutoSubmitRetries: 1, Interval: time.Millisecond, Timeout: 5 * time.Second}))
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.service.SelectAnswer(ctx, "u1", "5", "Q1", 0); err != nil {
		t.Fatalf("answer: %v", err)
	}
	session := h.session(t, "u1")

	h.ledger.failNext(100)
	h.clock.Add(10 * time.Minute)
	eventually(t, "failed auto-submit", func() bool {
		snap := session.Snapshot()
		return snap.State == domain.StateInProgress && snap.LastError != ""
	})
	if calls, _ := h.ledger.stats(); calls != 2 {
		t.Fatalf("expected first write plus one retry, got %d", calls)
	}

	_, err := h.service.SelectAnswer(ctx, "u1", "5", "Q2", 2)
	var stateErr *domain.InvalidStateError
	if !errors.As(err, &stateErr) || stateErr.Reason == "" {
		t.Fatalf("expected answers frozen after the deadline, got %v", err)
	}

	h.ledger.failNext(0)
	result, err := h.service.Submit(ctx, "u1", "5")
	if err != nil {
		t.Fatalf("manual submit after freeze: %v", err)
	}
	if result.CorrectCount != 1 || result.TimeTakenSeconds != 600 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestInvalidQuestionReferences(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}

	cases := []struct {
		name string
		run  func() error
	}{
		{"unknown question", func() error { _, err := h.service.SelectAnswer(ctx, "u1", "5", "Q9", 0); return err }},
		{"option out of range", func() error { _, err := h.service.SelectAnswer(ctx, "u1", "5", "Q1", 3); return err }},
		{"negative option", func() error { _, err := h.service.SelectAnswer(ctx, "u1", "5", "Q1", -1); return err }},
		{"navigate past end", func() error { _, err := h.service.Navigate(ctx, "u1", "5", 2); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, domain.ErrInvalidQuestion) {
				t.Fatalf("expected ErrInvalidQuestion, got %v", err)
			}
		})
	}

	view, err := h.service.Navigate(ctx, "u1", "5", 1)
	if err != nil || view.ID != "Q2" || view.Index != 1 {
		t.Fatalf("navigate: %+v %v", view, err)
	}
	snap, _ := h.service.Snapshot(ctx, "u1", "5")
	if snap.CurrentIndex != 1 || snap.Answered != 0 {
		t.Fatalf("rejected answers must not be stored: %+v", snap)
	}
}

func TestAbandonRecordsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := h.session(t, "u1")
	if err := h.service.Abandon(ctx, "u1", "5"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	waitDone(t, session)

	if session.State() != domain.StateAbandoned {
		t.Fatalf("expected abandoned, got %s", session.State())
	}
	if _, err := session.Submit(ctx); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("submit after abandon: %v", err)
	}
	if calls, _ := h.ledger.stats(); calls != 0 {
		t.Fatalf("abandon must not write the ledger")
	}
	// the attempt quota is untouched
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("restart after abandon: %v", err)
	}
}

func TestSubscribeStreamsTicks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	updates, cancel, err := h.service.Subscribe(ctx, "u1", "5")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	initial := <-updates
	if initial.RemainingSeconds != 600 || initial.State != domain.StateInProgress {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	h.clock.Add(10 * time.Second)
	select {
	case snap := <-updates:
		if snap.RemainingSeconds != 590 {
			t.Fatalf("expected 590s remaining, got %d", snap.RemainingSeconds)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick snapshot")
	}
}

func TestSubscribeWhileBroadcasting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	session := h.session(t, "u1")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = session.SelectAnswer("Q1", i%3)
		}
	}()

	subscribed := make(chan struct{})
	go func() {
		defer close(subscribed)
		for i := 0; i < 200; i++ {
			updates, cancel := session.subscribe()
			if snap := <-updates; snap.SessionID != session.ID() {
				t.Errorf("unexpected snapshot %+v", snap)
			}
			cancel()
		}
	}()

	select {
	case <-subscribed:
	case <-time.After(5 * time.Second):
		t.Fatalf("subscribe blocked while snapshots were broadcast")
	}
	close(stop)
	wg.Wait()
}
