package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
	"quiz-session-service/internal/scoring"
)

const (
	triggerManual = "manual"
	triggerTimer  = "timer"
)

// RetryPolicy controls how timer-driven submissions retry ledger writes.
type RetryPolicy struct {
	// AutoSubmitRetries is the number of retries after the first failed write.
	AutoSubmitRetries int
	Interval          time.Duration
	// Timeout bounds a whole timer-driven submission, retries included.
	Timeout time.Duration
}

// DefaultRetryPolicy retries an expired session's write twice.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{AutoSubmitRetries: 2, Interval: 200 * time.Millisecond, Timeout: 10 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	retries := p.AutoSubmitRetries
	if retries < 1 {
		retries = 1
	}
	interval := p.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = interval
	eb.MaxInterval = 10 * interval
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

type sessionDeps struct {
	clock     clock.Clock
	ledger    AttemptLedger
	logger    *zap.Logger
	metrics   *metrics.Recorder
	retry     RetryPolicy
	tick      time.Duration
	onSettled func(*Session)
}

// Session is one user's attempt at one quiz, from start to submission.
// The lifecycle state is a single atomic field: every exit from in-progress
// goes through a compare-and-swap, so the timer and a manual submit cannot both win.
type Session struct {
	id        string
	key       domain.SessionKey
	quiz      domain.Quiz
	deps      sessionDeps
	state     atomic.Int32
	countdown *Countdown
	log       *zap.Logger

	mu          sync.Mutex
	current     int
	answers     *AnswerStore
	result      *domain.Result
	lastErr     string
	frozen      bool          // timer-driven submit gave up; only submit is accepted
	inflight    chan struct{} // closed when the current submission leaves Submitting
	subscribers map[chan domain.SessionSnapshot]struct{}

	done       chan struct{}
	settleOnce sync.Once
}

// NewSession builds an unstarted session without a ledger. It is exported for
// infrastructure layers that need a session value to register.
func NewSession(id, userID string, quiz domain.Quiz) *Session {
	return newSession(id, userID, quiz, sessionDeps{
		clock:  clock.New(),
		logger: zap.NewNop(),
		retry:  DefaultRetryPolicy(),
		tick:   time.Second,
	})
}

func newSession(id, userID string, quiz domain.Quiz, deps sessionDeps) *Session {
	s := &Session{
		id:          id,
		key:         domain.SessionKey{UserID: userID, QuizID: quiz.ID},
		quiz:        quiz,
		deps:        deps,
		answers:     NewAnswerStore(),
		subscribers: make(map[chan domain.SessionSnapshot]struct{}),
		done:        make(chan struct{}),
	}
	s.log = deps.logger.With(
		zap.String("session_id", id),
		zap.String("user_id", userID),
		zap.String("quiz_id", quiz.ID),
	)
	s.countdown = NewCountdown(deps.clock, quiz.TimeLimit(), deps.tick, s.onTick, s.expire)
	return s
}

func (s *Session) ID() string { return s.id }
func (s *Session) Key() domain.SessionKey { return s.key }
func (s *Session) Quiz() domain.Quiz { return s.quiz }
func (s *Session) Countdown() *Countdown { return s.countdown }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) State() domain.SessionState {
	return domain.SessionState(s.state.Load())
}

func (s *Session) transition(from, to domain.SessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// start moves NotStarted -> InProgress and starts the countdown.
func (s *Session) start() error {
	if !s.transition(domain.StateNotStarted, domain.StateInProgress) {
		return &domain.InvalidStateError{Op: "start", State: s.State()}
	}
	s.countdown.Start()
	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// SelectAnswer records optionIndex for questionID, overwriting any earlier choice.
func (s *Session) SelectAnswer(questionID string, optionIndex int) (domain.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMutableLocked("select_answer"); err != nil {
		return domain.SessionSnapshot{}, err
	}
	idx := s.quiz.QuestionIndex(questionID)
	if idx < 0 {
		return domain.SessionSnapshot{}, &domain.InvalidQuestionError{QuestionID: questionID, Index: optionIndex, Reason: "question not in quiz"}
	}
	if optionIndex < 0 || optionIndex >= len(s.quiz.Questions[idx].Options) {
		return domain.SessionSnapshot{}, &domain.InvalidQuestionError{QuestionID: questionID, Index: optionIndex, Reason: "option out of range"}
	}
	s.answers.Set(questionID, optionIndex)
	return s.broadcastLocked(), nil
}

// Navigate moves to the question at index. Unanswered questions may be skipped.
func (s *Session) Navigate(index int) (domain.QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkMutableLocked("navigate"); err != nil {
		return domain.QuestionView{}, err
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		return domain.QuestionView{}, &domain.InvalidQuestionError{Index: index, Reason: "navigation index out of range"}
	}
	s.current = index
	s.broadcastLocked()
	return s.quiz.View(index), nil
}

// CurrentQuestion returns the question the user is looking at.
func (s *Session) CurrentQuestion() (domain.QuestionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.quiz.Questions) == 0 {
		return domain.QuestionView{}, false
	}
	return s.quiz.View(s.current), true
}

func (s *Session) checkMutableLocked(op string) error {
	if st := s.State(); st != domain.StateInProgress {
		return &domain.InvalidStateError{Op: op, State: st}
	}
	if s.frozen || s.countdown.Expired() {
		return &domain.InvalidStateError{Op: op, State: domain.StateInProgress, Reason: "deadline passed"}
	}
	return nil
}

// Submit grades the captured answers and records the attempt. Calling it on a
// completed session returns the recorded result without writing again. A call
// that finds another submission in flight waits for it and returns its outcome.
func (s *Session) Submit(ctx context.Context) (domain.Result, error) {
	for {
		if s.beginSubmit() {
			return s.finish(ctx, triggerManual)
		}
		s.mu.Lock()
		st := s.State()
		inflight := s.inflight
		s.mu.Unlock()

		switch st {
		case domain.StateCompleted:
			return s.Result(), nil
		case domain.StateSubmitting:
			select {
			case <-inflight:
			case <-ctx.Done():
				return domain.Result{}, ctx.Err()
			}
		default:
			return domain.Result{}, &domain.InvalidStateError{Op: "submit", State: st}
		}
	}
}

// beginSubmit moves InProgress -> Submitting. Every move into or out of
// Submitting happens under s.mu so waiters always see a live inflight channel.
func (s *Session) beginSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transition(domain.StateInProgress, domain.StateSubmitting) {
		return false
	}
	s.inflight = make(chan struct{})
	return true
}

// expire is the countdown's expiry handler. Losing the race to a manual submit is a no-op.
func (s *Session) expire() {
	if !s.beginSubmit() {
		return
	}
	s.deps.metrics.AutoSubmitted()
	s.log.Info("time limit reached, submitting")
	timeout := s.deps.retry.Timeout
	if timeout <= 0 {
		timeout = DefaultRetryPolicy().Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, _ = s.finish(ctx, triggerTimer)
}

// finish runs with the state held at Submitting.
func (s *Session) finish(ctx context.Context, trigger string) (domain.Result, error) {
	s.countdown.Stop()

	s.mu.Lock()
	answers := s.answers.Snapshot()
	s.lastErr = ""
	s.broadcastLocked()
	s.mu.Unlock()

	graded := scoring.Score(s.quiz, answers)
	sub := domain.AttemptSubmission{
		QuizID:           s.quiz.ID,
		UserID:           s.key.UserID,
		Answers:          answers,
		Score:            graded.ScorePercent,
		CorrectCount:     graded.CorrectCount,
		TotalQuestions:   graded.TotalQuestions,
		Passed:           graded.Passed,
		TimeTakenSeconds: int(s.countdown.Elapsed() / time.Second),
		SubmittedAt:      s.deps.clock.Now().UTC(),
	}

	attempt, err := s.record(ctx, sub, trigger)
	if err != nil {
		return domain.Result{}, s.revert(err, trigger)
	}

	result := scoring.NewResult(s.quiz, attempt)
	s.mu.Lock()
	s.result = &result
	s.transition(domain.StateSubmitting, domain.StateCompleted)
	close(s.inflight)
	s.broadcastLocked()
	s.mu.Unlock()

	s.deps.metrics.AttemptRecorded(result.Passed, trigger)
	s.log.Info("attempt recorded",
		zap.String("attempt_id", result.AttemptID),
		zap.Int("sequence", result.Sequence),
		zap.Int("score", result.ScorePercent),
		zap.Bool("passed", result.Passed),
		zap.Int("time_taken_seconds", result.TimeTakenSeconds),
		zap.String("trigger", trigger),
	)
	s.settle()
	return result, nil
}

func (s *Session) record(ctx context.Context, sub domain.AttemptSubmission, trigger string) (domain.Attempt, error) {
	if trigger == triggerManual {
		return s.deps.ledger.Record(ctx, sub)
	}
	var attempt domain.Attempt
	op := func() error {
		a, err := s.deps.ledger.Record(ctx, sub)
		if err != nil {
			return err
		}
		attempt = a
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("ledger write failed, retrying", zap.Error(err), zap.Duration("backoff", wait))
	}
	err := backoff.RetryNotify(op, s.deps.retry.backOff(ctx), notify)
	return attempt, err
}

// revert returns a failed submission to InProgress with answers intact.
func (s *Session) revert(cause error, trigger string) error {
	failure := &domain.SubmissionFailedError{Err: cause}
	s.deps.metrics.SubmissionFailed(trigger)
	s.log.Error("attempt submission failed", zap.Error(cause), zap.String("trigger", trigger))

	s.mu.Lock()
	s.lastErr = failure.Error()
	if trigger == triggerTimer {
		s.frozen = true
	}
	frozen := s.frozen
	s.transition(domain.StateSubmitting, domain.StateInProgress)
	close(s.inflight)
	s.broadcastLocked()
	s.mu.Unlock()

	switch {
	case frozen:
	case s.countdown.Expired():
		// the deadline passed while the manual write was in flight
		go s.expire()
	default:
		s.countdown.Resume()
	}
	return failure
}

// Abandon discards an unsubmitted session. It produces no attempt.
func (s *Session) Abandon() error {
	if !s.transition(domain.StateInProgress, domain.StateAbandoned) &&
		!s.transition(domain.StateNotStarted, domain.StateAbandoned) {
		st := s.State()
		if st.Terminal() {
			return nil
		}
		return &domain.InvalidStateError{Op: "abandon", State: st}
	}
	s.countdown.Stop()
	s.mu.Lock()
	s.broadcastLocked()
	s.mu.Unlock()
	s.log.Info("session abandoned")
	s.settle()
	return nil
}

// Result returns the recorded result, or the zero value before completion.
func (s *Session) Result() domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.Result{}
	}
	return *s.result
}

func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) settle() {
	s.settleOnce.Do(func() {
		close(s.done)
		if s.deps.onSettled != nil {
			s.deps.onSettled(s)
		}
	})
}

func (s *Session) onTick(time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == domain.StateInProgress {
		s.broadcastLocked()
	}
}

func (s *Session) subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	// the buffer is empty here, so this send cannot block
	ch <- s.snapshotLocked()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.SessionSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// slow subscriber: drop its oldest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() domain.SessionSnapshot {
	snap := domain.SessionSnapshot{
		SessionID:        s.id,
		UserID:           s.key.UserID,
		QuizID:           s.key.QuizID,
		State:            s.State(),
		CurrentIndex:     s.current,
		TotalQuestions:   len(s.quiz.Questions),
		Answered:         s.answers.Len(),
		Answers:          s.answers.Snapshot(),
		RemainingSeconds: s.countdown.RemainingSeconds(),
		Deadline:         s.countdown.Deadline(),
		LastError:        s.lastErr,
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}
