package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

const attemptColumns = `id, quiz_id, user_id, sequence, answers, score, correct_count,
	total_questions, passed, time_taken_seconds, submitted_at`

// AttemptLedger stores attempts in the attempts table. Sequence numbers are
// assigned under a transaction-scoped advisory lock on (user, quiz).
type AttemptLedger struct {
	pool *pgxpool.Pool
}

func NewAttemptLedger(pool *pgxpool.Pool) *AttemptLedger {
	return &AttemptLedger{pool: pool}
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
		SubmittedAt:      sub.SubmittedAt,
	}

	err = l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, sub.UserID, sub.QuizID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM attempts WHERE user_id=$1 AND quiz_id=$2`,
			sub.UserID, sub.QuizID,
		).Scan(&attempt.Sequence); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO attempts (`+attemptColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			attempt.ID, attempt.QuizID, attempt.UserID, attempt.Sequence, answers, attempt.Score,
			attempt.CorrectCount, attempt.TotalQuestions, attempt.Passed, attempt.TimeTakenSeconds, attempt.SubmittedAt)
		return err
	})
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("record attempt: %w", err)
	}
	return attempt, nil
}

func (l *AttemptLedger) History(ctx context.Context, userID, quizID string) ([]domain.AttemptSummary, error) {
	rows, err := l.pool.Query(ctx, `
SELECT id, sequence, score, passed, submitted_at FROM attempts
WHERE user_id=$1 AND quiz_id=$2 ORDER BY sequence`, userID, quizID)
	if err != nil {
		return nil, fmt.Errorf("attempt history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.AttemptSummary, 0)
	for rows.Next() {
		var s domain.AttemptSummary
		if err := rows.Scan(&s.ID, &s.Sequence, &s.Score, &s.Passed, &s.SubmittedAt); err != nil {
			return nil, err
		}
		history = append(history, s)
	}
	return history, rows.Err()
}

func (l *AttemptLedger) Attempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var (
		a   domain.Attempt
		raw []byte
	)
	err := l.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, attemptID).Scan(
		&a.ID, &a.QuizID, &a.UserID, &a.Sequence, &raw, &a.Score, &a.CorrectCount,
		&a.TotalQuestions, &a.Passed, &a.TimeTakenSeconds, &a.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	if err := json.Unmarshal(raw, &a.Answers); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	a.SubmittedAt = a.SubmittedAt.UTC()
	return a, nil
}
