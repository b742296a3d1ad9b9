package domain

import "fmt"

// Validate checks the quiz definition invariants.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	if q.TimeLimitMinutes <= 0 {
		return fmt.Errorf("%w: quiz %s: time limit must be positive", ErrInvalidQuiz, q.ID)
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return fmt.Errorf("%w: quiz %s: passing score %d out of range", ErrInvalidQuiz, q.ID, q.PassingScore)
	}
	if q.MaxAttempts < 0 {
		return fmt.Errorf("%w: quiz %s: negative max attempts", ErrInvalidQuiz, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("%w: quiz %s: question %d has no id", ErrInvalidQuiz, q.ID, i)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: quiz %s: duplicate question %s", ErrInvalidQuiz, q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
		if len(question.Options) == 0 {
			return fmt.Errorf("%w: quiz %s: question %s has no options", ErrInvalidQuiz, q.ID, question.ID)
		}
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return fmt.Errorf("%w: quiz %s: question %s correct index out of range", ErrInvalidQuiz, q.ID, question.ID)
		}
	}
	return nil
}
