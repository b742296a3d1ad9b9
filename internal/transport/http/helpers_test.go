package http

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	"quiz-session-service/internal/metrics"
)

type fixture struct {
	service  *app.SessionService
	ledger   *memory.AttemptLedger
	events   *memory.EventBus
	registry *prometheus.Registry
	recorder *metrics.Recorder
}

func newFixture() fixture {
	registry := prometheus.NewRegistry()
	ledger := memory.NewAttemptLedger()
	events := memory.NewEventBus()
	recorder := metrics.New(registry)
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{"5": sampleQuiz()}), time.Minute)
	service := app.NewSessionService(memory.NewSessionStore(), quizzes, ledger, events,
		app.WithMetrics(recorder),
		app.WithTickInterval(50*time.Millisecond),
	)
	return fixture{service: service, ledger: ledger, events: events, registry: registry, recorder: recorder}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "5",
		Title:            "Safety basics",
		TimeLimitMinutes: 10,
		PassingScore:     50,
		MaxAttempts:      1,
		Questions: []domain.Question{
			{ID: "Q1", Prompt: "First?", Options: []string{"a", "b", "c"}, CorrectIndex: 0},
			{ID: "Q2", Prompt: "Second?", Options: []string{"a", "b", "c"}, CorrectIndex: 2},
		},
	}
}
