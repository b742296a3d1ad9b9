package scoring

import (
	"fmt"

	"quiz-session-service/internal/domain"
)

// NewResult builds the review view of a recorded attempt. Score, pass flag and
// sequence come from the attempt as stored by the ledger; per-question lines are
// re-derived from the quiz answer key.
func NewResult(quiz domain.Quiz, attempt domain.Attempt) domain.Result {
	graded := Score(quiz, attempt.Answers)
	total := attempt.TotalQuestions
	if total == 0 {
		total = graded.TotalQuestions
	}
	result := domain.Result{
		AttemptID:        attempt.ID,
		QuizID:           attempt.QuizID,
		UserID:           attempt.UserID,
		Sequence:         attempt.Sequence,
		ScorePercent:     attempt.Score,
		CorrectCount:     attempt.CorrectCount,
		TotalQuestions:   total,
		PassingScore:     quiz.PassingScore,
		Passed:           attempt.Passed,
		TimeTakenSeconds: attempt.TimeTakenSeconds,
		SubmittedAt:      attempt.SubmittedAt,
		Questions:        graded.PerQuestion,
	}
	result.Feedback = Feedback(result)
	return result
}

// Feedback renders the summary line shown with a result.
func Feedback(r domain.Result) string {
	if r.Passed {
		return fmt.Sprintf("Passed with %d%% (%d of %d correct). The passing score is %d%%.",
			r.ScorePercent, r.CorrectCount, r.TotalQuestions, r.PassingScore)
	}
	return fmt.Sprintf("Scored %d%% (%d of %d correct); %d%% is required to pass.",
		r.ScorePercent, r.CorrectCount, r.TotalQuestions, r.PassingScore)
}
