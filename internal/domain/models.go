package domain

import "time"

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Prompt       string   `json:"prompt" yaml:"prompt"`
	Options      []string `json:"options" yaml:"options"`
	CorrectIndex int      `json:"correctIndex" yaml:"correct_index"`
	Explanation  string   `json:"explanation,omitempty" yaml:"explanation"`
}

// Quiz is an immutable quiz definition, answer key included.
type Quiz struct {
	ID               string     `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	Description      string     `json:"description,omitempty" yaml:"description"`
	Questions        []Question `json:"questions" yaml:"questions"`
	TimeLimitMinutes int        `json:"timeLimitMinutes" yaml:"time_limit_minutes"`
	PassingScore     int        `json:"passingScore" yaml:"passing_score"`
	MaxAttempts      int        `json:"maxAttempts" yaml:"max_attempts"` // 0 means unlimited
}

// TimeLimit returns the session duration allowed by the quiz.
func (q Quiz) TimeLimit() time.Duration {
	return time.Duration(q.TimeLimitMinutes) * time.Minute
}

// QuestionIndex returns the position of a question, or -1.
func (q Quiz) QuestionIndex(questionID string) int {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}

// QuestionView is a question as shown to a quiz taker: labels only, no key.
type QuestionView struct {
	Index   int      `json:"index"`
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// PublicQuiz is the answer-free projection of a Quiz.
type PublicQuiz struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description,omitempty"`
	Questions        []QuestionView `json:"questions"`
	TimeLimitMinutes int            `json:"timeLimitMinutes"`
	PassingScore     int            `json:"passingScore"`
	MaxAttempts      int            `json:"maxAttempts"`
}

// View returns the question at index i without its answer key.
func (q Quiz) View(i int) QuestionView {
	question := q.Questions[i]
	options := make([]string, len(question.Options))
	copy(options, question.Options)
	return QuestionView{Index: i, ID: question.ID, Prompt: question.Prompt, Options: options}
}

// Public strips correct indexes and explanations.
func (q Quiz) Public() PublicQuiz {
	views := make([]QuestionView, len(q.Questions))
	for i := range q.Questions {
		views[i] = q.View(i)
	}
	return PublicQuiz{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Questions:        views,
		TimeLimitMinutes: q.TimeLimitMinutes,
		PassingScore:     q.PassingScore,
		MaxAttempts:      q.MaxAttempts,
	}
}

// AttemptSubmission is what the session hands to the attempt ledger.
type AttemptSubmission struct {
	QuizID           string
	UserID           string
	Answers          map[string]int
	Score            int
	CorrectCount     int
	TotalQuestions   int
	Passed           bool
	TimeTakenSeconds int
	SubmittedAt      time.Time
}

// Attempt is an immutable, persisted record of a completed submission.
type Attempt struct {
	ID               string         `json:"id"`
	QuizID           string         `json:"quizId"`
	UserID           string         `json:"userId"`
	Sequence         int            `json:"sequence"`
	Answers          map[string]int `json:"answers"`
	Score            int            `json:"score"`
	CorrectCount     int            `json:"correctCount"`
	TotalQuestions   int            `json:"totalQuestions"`
	Passed           bool           `json:"passed"`
	TimeTakenSeconds int            `json:"timeTakenSeconds"`
	SubmittedAt      time.Time      `json:"submittedAt"`
}

// Summary projects the attempt onto the fields eligibility needs.
func (a Attempt) Summary() AttemptSummary {
	return AttemptSummary{
		ID:          a.ID,
		Sequence:    a.Sequence,
		Score:       a.Score,
		Passed:      a.Passed,
		SubmittedAt: a.SubmittedAt,
	}
}

// AttemptSummary is one entry of a user's attempt history for a quiz.
type AttemptSummary struct {
	ID          string    `json:"id"`
	Sequence    int       `json:"sequence"`
	Score       int       `json:"score"`
	Passed      bool      `json:"passed"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Unanswered marks a question without a recorded selection.
const Unanswered = -1

// QuestionOutcome is the review line for a single question.
type QuestionOutcome struct {
	QuestionID    string   `json:"questionId"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectIndex  int      `json:"correctIndex"`
	SelectedIndex int      `json:"selectedIndex"` // Unanswered when no answer was recorded
	Correct       bool     `json:"correct"`
	Explanation   string   `json:"explanation,omitempty"`
}

// Answered reports whether the user picked an option for this question.
func (o QuestionOutcome) Answered() bool {
	return o.SelectedIndex != Unanswered
}

// Result is the read-only review of one attempt.
type Result struct {
	AttemptID        string            `json:"attemptId"`
	QuizID           string            `json:"quizId"`
	UserID           string            `json:"userId"`
	Sequence         int               `json:"sequence"`
	ScorePercent     int               `json:"scorePercent"`
	CorrectCount     int               `json:"correctCount"`
	TotalQuestions   int               `json:"totalQuestions"`
	PassingScore     int               `json:"passingScore"`
	Passed           bool              `json:"passed"`
	TimeTakenSeconds int               `json:"timeTakenSeconds"`
	SubmittedAt      time.Time         `json:"submittedAt"`
	Questions        []QuestionOutcome `json:"questions"`
	Feedback         string            `json:"feedback"`
}

// PassEvent is emitted once a passing attempt has been recorded.
type PassEvent struct {
	AttemptID string    `json:"attemptId"`
	UserID    string    `json:"userId"`
	QuizID    string    `json:"quizId"`
	Score     int       `json:"score"`
	Sequence  int       `json:"sequence"`
	PassedAt  time.Time `json:"passedAt"`
}

// SessionKey identifies the single live session a user may hold for a quiz.
type SessionKey struct {
	UserID string
	QuizID string
}

func (k SessionKey) String() string {
	return k.UserID + ":" + k.QuizID
}

// SessionSnapshot is a point-in-time view of a session for the presentation layer.
type SessionSnapshot struct {
	SessionID        string         `json:"sessionId"`
	UserID           string         `json:"userId"`
	QuizID           string         `json:"quizId"`
	State            SessionState   `json:"state"`
	CurrentIndex     int            `json:"currentIndex"`
	TotalQuestions   int            `json:"totalQuestions"`
	Answered         int            `json:"answered"`
	Answers          map[string]int `json:"answers"`
	RemainingSeconds int            `json:"remainingSeconds"`
	Deadline         time.Time      `json:"deadline"`
	Result           *Result        `json:"result,omitempty"`
	LastError        string         `json:"lastError,omitempty"`
}
