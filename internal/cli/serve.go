package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"daily-trivia-service/internal/app"
	"daily-trivia-service/internal/config"
	"daily-trivia-service/internal/domain"
	"daily-trivia-service/internal/infra/memory"
	pgstore "daily-trivia-service/internal/infra/postgres"
	redisquiz "daily-trivia-service/internal/infra/redis"
	"daily-trivia-service/internal/scoring"
	transport "daily-trivia-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the daily trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	quizTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var (
		attemptStore app.AttemptStore
		scoreStore   app.ScoreStore
		quizzes      app.QuizProvider
		handles      app.HandleDirectory
	)
	if pool != nil {
		attemptStore = pgstore.NewAttemptStore(pool)
		scoreStore = pgstore.NewScoreStore(pool)
		handles = pgstore.NewHandleDirectory(pool)
		loader := pgstore.NewQuizProvider(pool)
		if redisClient != nil {
			quizzes = redisquiz.NewQuizProvider(redisClient, loader, quizTTL)
		} else {
			quizzes = loader
		}
	} else {
		// Infrastructure-less demo mode: everything in memory, one quiz.
		store := memory.NewAttemptStore()
		attemptStore = store
		scoreStore = store
		quizzes = memory.NewQuizProvider(map[string]domain.Quiz{"demo-quiz": demoQuiz()})
		handles = memory.NewHandleDirectory(nil)
		log.Printf("no postgres configured, serving demo quiz from memory")
	}

	attempts := app.NewAttemptService(attemptStore, quizzes)
	leaderboard := app.NewLeaderboardService(scoreStore, quizzes, handles)
	handler := transport.NewHandler(attempts, leaderboard)
	watchInterval := config.TTLDuration(cfg.Leaderboard.WatchInterval, 5*time.Second)
	watch := transport.NewWatchHandler(leaderboard, watchInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/leaderboard/watch", watch.ServeWatch)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting daily trivia service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// demoQuiz builds a ten-question arithmetic quiz so the service runs
// end-to-end with no infrastructure.
func demoQuiz() domain.Quiz {
	quiz := domain.Quiz{
		ID:        "demo-quiz",
		ReleaseAt: time.Now().Add(-time.Minute),
	}
	for i := 1; i <= scoring.MaxQuestions; i++ {
		question := domain.QuizQuestion{
			ID:     fmt.Sprintf("q%d", i),
			Prompt: fmt.Sprintf("What is %d + %d?", i, i),
		}
		for j := 0; j < scoring.ChoicesPerQuestion; j++ {
			question.Options = append(question.Options, domain.QuizOption{
				ID:      fmt.Sprintf("q%d-o%d", i, j+1),
				Text:    fmt.Sprintf("%d", 2*i+j-1),
				Correct: j == 1,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	return quiz
}
