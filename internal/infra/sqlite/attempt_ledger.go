package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // driver: sqlite

	"quiz-session-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  quiz_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  answers_json TEXT NOT NULL,
  score INTEGER NOT NULL,
  correct_count INTEGER NOT NULL,
  total_questions INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  time_taken_seconds INTEGER NOT NULL,
  submitted_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS attempts_user_quiz_sequence ON attempts(user_id, quiz_id, sequence);
`

// AttemptLedger is a single-node attempt store on an embedded SQLite file.
type AttemptLedger struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*AttemptLedger, error) {
	dsn := "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps sequence assignment serial
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &AttemptLedger{db: db}, nil
}

func (l *AttemptLedger) Close() error {
	return l.db.Close()
}

func (l *AttemptLedger) Record(ctx context.Context, sub domain.AttemptSubmission) (domain.Attempt, error) {
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return domain.Attempt{}, err
	}
	attempt := domain.Attempt{
		ID:               uuid.NewString(),
		QuizID:           sub.QuizID,
		UserID:           sub.UserID,
		Answers:          sub.Answers,
		Score:            sub.Score,
		CorrectCount:     sub.CorrectCount,
		TotalQuestions:   sub.TotalQuestions,
		Passed:           sub.Passed,
		TimeTakenSeconds: sub.TimeTakenSeconds,
		SubmittedAt:      sub.SubmittedAt.UTC(),
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attempt{}, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM attempts WHERE user_id=? AND quiz_id=?`,
		sub.UserID, sub.QuizID,
	).Scan(&attempt.Sequence); err != nil {
		return domain.Attempt{}, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO attempts
(id, quiz_id, user_id, sequence, answers_json, score, correct_count, total_questions, passed, time_taken_seconds, submitted_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.Sequence, string(answers), attempt.Score,
		attempt.CorrectCount, attempt.TotalQuestions, boolToInt(attempt.Passed), attempt.TimeTakenSeconds,
		attempt.SubmittedAt.UnixNano())
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("record attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

func (l *AttemptLedger) History(ctx context.Context, userID, quizID string) ([]domain.AttemptSummary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, sequence, score, passed, submitted_at FROM attempts WHERE user_id=? AND quiz_id=? ORDER BY sequence`,
		userID, quizID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.AttemptSummary, 0)
	for rows.Next() {
		var (
			s      domain.AttemptSummary
			passed int
			at     int64
		)
		if err := rows.Scan(&s.ID, &s.Sequence, &s.Score, &passed, &at); err != nil {
			return nil, err
		}
		s.Passed = passed != 0
		s.SubmittedAt = time.Unix(0, at).UTC()
		history = append(history, s)
	}
	return history, rows.Err()
}

func (l *AttemptLedger) Attempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var (
		a       domain.Attempt
		answers string
		passed  int
		at      int64
	)
	err := l.db.QueryRowContext(ctx, `SELECT id, quiz_id, user_id, sequence, answers_json, score, correct_count,
total_questions, passed, time_taken_seconds, submitted_at FROM attempts WHERE id=?`, attemptID).Scan(
		&a.ID, &a.QuizID, &a.UserID, &a.Sequence, &answers, &a.Score, &a.CorrectCount,
		&a.TotalQuestions, &passed, &a.TimeTakenSeconds, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	a.Passed = passed != 0
	a.SubmittedAt = time.Unix(0, at).UTC()
	return a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
