package cli

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"quiz-session-service/internal/config"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/infra/sqlite"
)

func TestSampleQuizzesAreValid(t *testing.T) {
	for id, quiz := range sampleQuizzes() {
		if err := quiz.Validate(); err != nil {
			t.Fatalf("sample quiz %s invalid: %v", id, err)
		}
	}
}

func TestOpenBackendsPrefersSQLiteLedgerWithoutPostgres(t *testing.T) {
	cfg := config.Default()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "attempts.db")

	b, err := openBackends(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("open backends: %v", err)
	}
	defer b.Close()

	if _, ok := b.ledger.(*sqlite.AttemptLedger); !ok {
		t.Fatalf("expected sqlite ledger, got %T", b.ledger)
	}
	if _, ok := b.sessions.(*memory.SessionStore); !ok {
		t.Fatalf("expected in-memory session store, got %T", b.sessions)
	}
	if _, err := b.quizzes.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("expected sample quiz: %v", err)
	}
}
