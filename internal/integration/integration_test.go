package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"daily-trivia-service/internal/app"
	"daily-trivia-service/internal/domain"
	pgstore "daily-trivia-service/internal/infra/postgres"
	pgmigrations "daily-trivia-service/internal/infra/postgres/migrations"
	infraredis "daily-trivia-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	store := pgstore.NewAttemptStore(pool)
	quizzes := infraredis.NewQuizProvider(redisClient, pgstore.NewQuizProvider(pool), 5*time.Minute)
	attempts := app.NewAttemptService(store, quizzes)
	leaderboard := app.NewLeaderboardService(pgstore.NewScoreStore(pool), quizzes, pgstore.NewHandleDirectory(pool))

	quiz, err := attempts.CurrentQuiz(ctx)
	if err != nil {
		t.Fatalf("current quiz: %v", err)
	}
	if quiz.ID != "quiz-1" {
		t.Fatalf("expected quiz-1 released, got %s", quiz.ID)
	}

	// Alice answers everything correctly.
	view, err := attempts.StartOrResume(ctx, "p1", quiz.ID)
	if err != nil {
		t.Fatalf("start p1: %v", err)
	}
	if view.CurrentIndex != 1 || view.Question == nil {
		t.Fatalf("expected fresh attempt on question 1, got %+v", view)
	}
	for i := 1; i <= 10; i++ {
		if _, err := attempts.SubmitAnswer(ctx, "p1", view.AttemptID, fmt.Sprintf("q%d", i), fmt.Sprintf("q%d-o2", i)); err != nil {
			t.Fatalf("submit p1 q%d: %v", i, err)
		}
	}
	score, err := attempts.Finalize(ctx, "p1", view.AttemptID)
	if err != nil {
		t.Fatalf("finalize p1: %v", err)
	}
	if score.CorrectCount != 10 || score.Score != 100 {
		t.Fatalf("expected a perfect run for p1, got %+v", score)
	}

	// Finalize again: identical result, nothing re-aggregated.
	again, err := attempts.Finalize(ctx, "p1", view.AttemptID)
	if err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	if again.Score != score.Score || !again.CompletedAt.Equal(score.CompletedAt) {
		t.Fatalf("repeat finalize diverged: %+v vs %+v", again, score)
	}

	// Bob gets every question wrong.
	view2, err := attempts.StartOrResume(ctx, "p2", quiz.ID)
	if err != nil {
		t.Fatalf("start p2: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if _, err := attempts.SubmitAnswer(ctx, "p2", view2.AttemptID, fmt.Sprintf("q%d", i), fmt.Sprintf("q%d-o1", i)); err != nil {
			t.Fatalf("submit p2 q%d: %v", i, err)
		}
	}
	if _, err := attempts.Finalize(ctx, "p2", view2.AttemptID); err != nil {
		t.Fatalf("finalize p2: %v", err)
	}

	result, err := leaderboard.Rank(ctx, app.RankQuery{Window: app.WindowToday, Mode: app.ModeTop})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if result.TotalPlayers != 2 {
		t.Fatalf("expected 2 players on the board, got %d", result.TotalPlayers)
	}
	if result.Entries[0].PlayerID != "p1" || result.Entries[0].Handle != "Alice" {
		t.Fatalf("expected Alice leading, got %+v", result.Entries[0])
	}
	if result.Entries[1].PlayerID != "p2" || result.Entries[1].Score != 0 {
		t.Fatalf("expected p2 trailing with zero, got %+v", result.Entries[1])
	}

	// Resuming a finalized attempt is a read-only snapshot.
	resumed, err := attempts.StartOrResume(ctx, "p1", quiz.ID)
	if err != nil {
		t.Fatalf("resume finalized: %v", err)
	}
	if resumed.State != domain.StateFinalized || resumed.TotalScore != 100 {
		t.Fatalf("expected finalized snapshot, got %+v", resumed)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
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
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
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

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO quizzes (id, release_at, data) VALUES (?, ?, ?::jsonb)
		 ON CONFLICT (id) DO UPDATE SET release_at=EXCLUDED.release_at, data=EXCLUDED.data`,
		quiz.ID, quiz.ReleaseAt, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO player_handles (player_id, handle) VALUES (?, ?) ON CONFLICT (player_id) DO NOTHING`,
		"p1", "Alice"); err != nil {
		t.Fatalf("insert handle: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	quiz := domain.Quiz{ID: "quiz-1", ReleaseAt: time.Now().UTC().Add(-time.Hour)}
	for i := 1; i <= 10; i++ {
		question := domain.QuizQuestion{ID: fmt.Sprintf("q%d", i), Prompt: fmt.Sprintf("What is %d + %d?", i, i)}
		for j := 1; j <= 4; j++ {
			question.Options = append(question.Options, domain.QuizOption{
				ID:      fmt.Sprintf("q%d-o%d", i, j),
				Text:    fmt.Sprintf("%d", i+i+j-2),
				Correct: j == 2,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz
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
