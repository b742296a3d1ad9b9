package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/eligibility"
	pgstore "quiz-session-service/internal/infra/postgres"
	pgmigrations "quiz-session-service/internal/infra/postgres/migrations"
	infraredis "quiz-session-service/internal/infra/redis"
)

func TestTimedSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	passed := redisClient.Subscribe(ctx, infraredis.PassedChannel)
	defer passed.Close()
	if _, err := passed.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute, nil)
	sessionStore := infraredis.NewSessionStore(redisClient, time.Minute, nil)
	ledger := pgstore.NewAttemptLedger(pool)
	service := app.NewSessionService(sessionStore, quizRepo, ledger, infraredis.NewEventPublisher(redisClient))

	if _, err := service.Start(ctx, "u1", "5"); err != nil {
		t.Fatalf("start: %v", err)
	}
	// a second instance sharing redis cannot open the same session
	other := app.NewSessionService(infraredis.NewSessionStore(redisClient, time.Minute, nil), quizRepo, ledger, infraredis.NewEventPublisher(redisClient))
	if _, err := other.Start(ctx, "u1", "5"); !errors.Is(err, domain.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive across instances, got %v", err)
	}

	if _, err := service.SelectAnswer(ctx, "u1", "5", "Q1", 0); err != nil {
		t.Fatalf("answer Q1: %v", err)
	}
	if _, err := service.SelectAnswer(ctx, "u1", "5", "Q2", 1); err != nil {
		t.Fatalf("answer Q2: %v", err)
	}
	result, err := service.Submit(ctx, "u1", "5")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.CorrectCount != 1 || result.ScorePercent != 50 || !result.Passed || result.Sequence != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	select {
	case msg := <-passed.Channel():
		var event domain.PassEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("decode pass event: %v", err)
		}
		if event.AttemptID != result.AttemptID {
			t.Fatalf("unexpected pass event %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for pass event")
	}

	decision, err := other.Eligibility(ctx, "u1", "5")
	if err != nil {
		t.Fatalf("eligibility: %v", err)
	}
	if decision.Status != eligibility.AlreadyPassed || decision.CanStart {
		t.Fatalf("unexpected decision %+v", decision)
	}

	review, err := other.Review(ctx, "u1", result.AttemptID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.Questions[1].SelectedIndex != 1 || review.Questions[1].Correct {
		t.Fatalf("unexpected review %+v", review.Questions)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
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
			{ID: "Q2", Prompt: "Second?", Options: []string{"a", "b", "c"}, CorrectIndex: 2, Explanation: "c is right"},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
