package memory

import (
	"context"
	"errors"
	"testing"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := app.NewSession("s1", "u1", sampleQuiz())
	if err := store.Acquire(ctx, session); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got, ok := store.Get(session.Key()); !ok || got != session {
		t.Fatalf("expected session present")
	}

	second := app.NewSession("s2", "u1", sampleQuiz())
	if err := store.Acquire(ctx, second); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	// releasing a session that does not hold the key is a no-op
	store.Release(ctx, second)
	if _, ok := store.Get(session.Key()); !ok {
		t.Fatalf("foreign release removed the live session")
	}

	store.Release(ctx, session)
	if _, ok := store.Get(session.Key()); ok || store.Len() != 0 {
		t.Fatalf("expected session removed")
	}
}
