package app

// AnswerStore holds question id -> selected option for an in-progress session.
// It is not safe for concurrent use; Session guards it.
type AnswerStore struct {
	answers map[string]int
}

func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]int)}
}

// Set records a selection, replacing any earlier one for the question.
func (a *AnswerStore) Set(questionID string, option int) {
	a.answers[questionID] = option
}

func (a *AnswerStore) Get(questionID string) (int, bool) {
	option, ok := a.answers[questionID]
	return option, ok
}

func (a *AnswerStore) Len() int {
	return len(a.answers)
}

// Snapshot returns a copy safe to hand outside the session.
func (a *AnswerStore) Snapshot() map[string]int {
	out := make(map[string]int, len(a.answers))
	for k, v := range a.answers {
		out[k] = v
	}
	return out
}
