// Package scoring grades captured answers against a quiz answer key.
// Everything here is deterministic and free of side effects.
package scoring

import "quiz-session-service/internal/domain"

// Outcome is the result of grading one set of answers.
type Outcome struct {
	CorrectCount   int
	TotalQuestions int
	ScorePercent   int
	Passed         bool
	PerQuestion    []domain.QuestionOutcome
}

// Score grades answers (question id -> selected option index) against the quiz.
// Unanswered questions and out-of-range selections count as incorrect.
func Score(quiz domain.Quiz, answers map[string]int) Outcome {
	out := Outcome{
		TotalQuestions: len(quiz.Questions),
		PerQuestion:    make([]domain.QuestionOutcome, len(quiz.Questions)),
	}
	for i, q := range quiz.Questions {
		selected, ok := answers[q.ID]
		if !ok {
			selected = domain.Unanswered
		}
		correct := ok && selected == q.CorrectIndex
		if correct {
			out.CorrectCount++
		}
		options := make([]string, len(q.Options))
		copy(options, q.Options)
		out.PerQuestion[i] = domain.QuestionOutcome{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Options:       options,
			CorrectIndex:  q.CorrectIndex,
			SelectedIndex: selected,
			Correct:       correct,
			Explanation:   q.Explanation,
		}
	}
	out.ScorePercent = Percent(out.CorrectCount, out.TotalQuestions)
	out.Passed = Passed(out.ScorePercent, quiz.PassingScore)
	return out
}

// Percent returns round(100*correct/total), rounding halves up. An empty quiz scores 0.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

// Passed applies the inclusive pass threshold.
func Passed(scorePercent, passingScore int) bool {
	return scorePercent >= passingScore
}
