// Package eligibility decides whether a user may start a new graded attempt.
package eligibility

import "quiz-session-service/internal/domain"

// Status is the policy outcome shown to the presentation layer.
type Status string

const (
	CanStart      Status = "can_start"
	CanRetake     Status = "can_retake"
	Blocked       Status = "blocked"
	AlreadyPassed Status = "already_passed"
)

// Unlimited is reported as RemainingAttempts when the quiz has no quota.
const Unlimited = -1

// Decision is the evaluated eligibility for one (user, quiz).
type Decision struct {
	QuizID            string `json:"quizId"`
	Status            Status `json:"status"`
	CanStart          bool   `json:"canStart"`
	AttemptCount      int    `json:"attemptCount"`
	MaxAttempts       int    `json:"maxAttempts"`
	RemainingAttempts int    `json:"remainingAttempts"`
	BestScore         int    `json:"bestScore"`
	BestAttemptID     string `json:"bestAttemptId,omitempty"`
}

// Policy evaluates attempt history against a quiz's quota and pass threshold.
type Policy struct {
	// AllowRetakeAfterPass lets users who already passed start another graded
	// attempt while the quota has room.
	AllowRetakeAfterPass bool
}

// Evaluate computes the decision. history must be the authoritative ledger view.
func (p Policy) Evaluate(quiz domain.Quiz, history []domain.AttemptSummary) Decision {
	d := Decision{
		QuizID:            quiz.ID,
		AttemptCount:      len(history),
		MaxAttempts:       quiz.MaxAttempts,
		RemainingAttempts: Unlimited,
	}
	if quiz.MaxAttempts > 0 {
		d.RemainingAttempts = quiz.MaxAttempts - len(history)
		if d.RemainingAttempts < 0 {
			d.RemainingAttempts = 0
		}
	}
	quotaLeft := quiz.MaxAttempts == 0 || len(history) < quiz.MaxAttempts

	if len(history) == 0 {
		d.Status = CanStart
		d.CanStart = true
		return d
	}

	best := history[0]
	for _, a := range history[1:] {
		if a.Score > best.Score {
			best = a
		}
	}
	d.BestScore = best.Score
	d.BestAttemptID = best.ID

	switch {
	case best.Score >= quiz.PassingScore:
		d.Status = AlreadyPassed
		d.CanStart = p.AllowRetakeAfterPass && quotaLeft
	case quotaLeft:
		d.Status = CanRetake
		d.CanStart = true
	default:
		d.Status = Blocked
	}
	return d
}
