package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	redisstore "quiz-session-service/internal/infra/redis"
	"quiz-session-service/internal/infra/sqlite"
	"quiz-session-service/internal/logging"
)

// backends are the collaborators chosen from config:
// ledger postgres > sqlite > memory, session slots and cache in redis when configured.
type backends struct {
	quizzes  app.QuizRepository
	ledger   app.AttemptLedger
	sessions app.SessionRepository
	events   app.EventPublisher

	pool   *pgxpool.Pool
	redis  *redis.Client
	sqlite *sqlite.AttemptLedger
}

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return cfg, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}

func openBackends(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backends, error) {
	b := &backends{}
	var err error

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return nil, err
		}
		b.pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
	}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	loader, err := quizLoader(cfg, b.pool)
	if err != nil {
		b.Close()
		return nil, err
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if b.redis != nil {
		b.quizzes = redisstore.NewQuizRepository(b.redis, loader, quizTTL, logger)
	} else {
		b.quizzes = memory.NewQuizRepository(loader, quizTTL)
	}

	switch {
	case b.pool != nil:
		b.ledger = pgstore.NewAttemptLedger(b.pool)
	case cfg.SQLite.Path != "":
		b.sqlite, err = sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		b.ledger = b.sqlite
	default:
		logger.Warn("no durable attempt ledger configured, attempts are kept in memory")
		b.ledger = memory.NewAttemptLedger()
	}

	if b.redis != nil {
		grace := config.TTLDuration(cfg.Session.LeaseGrace, time.Minute)
		b.sessions = redisstore.NewSessionStore(b.redis, grace, logger)
		b.events = redisstore.NewEventPublisher(b.redis)
	} else {
		b.sessions = memory.NewSessionStore()
		b.events = memory.NewEventBus()
	}
	return b, nil
}

// quizLoader prefers the catalog file, then Postgres, then the built-in sample.
func quizLoader(cfg config.Config, pool *pgxpool.Pool) (memory.QuizLoader, error) {
	if cfg.Quiz.CatalogPath != "" {
		quizzes, err := memory.LoadCatalogFile(cfg.Quiz.CatalogPath)
		if err != nil {
			return nil, err
		}
		return memory.NewStaticQuizLoader(quizzes), nil
	}
	if pool != nil {
		return pgstore.NewQuizLoader(pool), nil
	}
	return memory.NewStaticQuizLoader(sampleQuizzes()), nil
}

func (b *backends) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.sqlite != nil {
		_ = b.sqlite.Close()
	}
}

// sampleQuizzes keeps the service usable with no catalog configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Arithmetic warm-up",
			TimeLimitMinutes: 5,
			PassingScore:     50,
			MaxAttempts:      3,
			Questions: []domain.Question{
				{
					ID:           "q1",
					Prompt:       "What is 2 + 2?",
					Options:      []string{"3", "4", "5"},
					CorrectIndex: 1,
				},
				{
					ID:           "q2",
					Prompt:       "What is 3 x 3?",
					Options:      []string{"6", "9", "12"},
					CorrectIndex: 1,
					Explanation:  "3 x 3 is 3 + 3 + 3.",
				},
			},
		},
	}
}
