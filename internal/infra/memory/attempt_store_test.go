package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"daily-trivia-service/internal/app"
	"daily-trivia-service/internal/domain"
)

func TestCreateAttemptEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	first := domain.Attempt{ID: "a1", PlayerID: "p1", QuizID: "quiz-1", CurrentIndex: 1}
	if err := store.CreateAttempt(ctx, first); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	dup := domain.Attempt{ID: "a2", PlayerID: "p1", QuizID: "quiz-1", CurrentIndex: 1}
	if err := store.CreateAttempt(ctx, dup); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	got, err := store.AttemptByPlayerQuiz(ctx, "p1", "quiz-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("expected first writer's row to win, got %s", got.ID)
	}
}

func TestRecordAnswerRejectsDuplicatesAndStaleWrites(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	started := time.Now()
	if err := store.CreateAttempt(ctx, domain.Attempt{ID: "a1", PlayerID: "p1", QuizID: "quiz-1", CurrentIndex: 1, QuestionStartedAt: &started}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	answer := domain.AttemptAnswer{AttemptID: "a1", QuestionID: "q1", QuestionIndex: 1, Kind: domain.AnswerSelected, SelectedOptionID: "o2", IsCorrect: true, BasePoints: 5, BonusPoints: 5, TimeMs: 700}
	progress := app.AttemptProgress{AttemptID: "a1", FromIndex: 1, NextIndex: 2, TotalScore: 10, TotalTimeMs: 700}
	if err := store.RecordAnswer(ctx, answer, progress); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	if err := store.RecordAnswer(ctx, answer, progress); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer, got %v", err)
	}

	stale := domain.AttemptAnswer{AttemptID: "a1", QuestionID: "q9", QuestionIndex: 9, Kind: domain.AnswerSelected}
	if err := store.RecordAnswer(ctx, stale, app.AttemptProgress{AttemptID: "a1", FromIndex: 9, NextIndex: 10}); !errors.Is(err, domain.ErrStaleAttempt) {
		t.Fatalf("expected stale attempt, got %v", err)
	}

	got, err := store.AttemptByID(ctx, "a1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.CurrentIndex != 2 || got.TotalScore != 10 {
		t.Fatalf("expected index 2 and score 10, got %+v", got)
	}
}

func TestFinalizeIsIdempotentAndUpsertsScore(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	if err := store.CreateAttempt(ctx, domain.Attempt{ID: "a1", PlayerID: "p1", QuizID: "quiz-1", CurrentIndex: domain.FinalizationIndex}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first := time.Now()
	score := domain.DailyScore{QuizID: "quiz-1", PlayerID: "p1", Score: 70, CorrectCount: 7, CompletedAt: first}
	if err := store.Finalize(ctx, "a1", first, score); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	// A repeat finalize with different numbers must not change anything.
	later := first.Add(time.Hour)
	if err := store.Finalize(ctx, "a1", later, domain.DailyScore{QuizID: "quiz-1", PlayerID: "p1", Score: 99, CompletedAt: later}); err != nil {
		t.Fatalf("repeat finalize failed: %v", err)
	}

	got, err := store.Score(ctx, "quiz-1", "p1")
	if err != nil {
		t.Fatalf("score lookup failed: %v", err)
	}
	if got.Score != 70 {
		t.Fatalf("repeat finalize overwrote the score: %+v", got)
	}
	attempt, _ := store.AttemptByID(ctx, "a1")
	if attempt.FinalizedAt == nil || !attempt.FinalizedAt.Equal(first) {
		t.Fatalf("expected finalized_at %v, got %v", first, attempt.FinalizedAt)
	}
}

func TestResetAttemptWipesEverything(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()

	if err := store.CreateAttempt(ctx, domain.Attempt{ID: "a1", PlayerID: "p1", QuizID: "quiz-1", CurrentIndex: 1}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	answer := domain.AttemptAnswer{AttemptID: "a1", QuestionID: "q1", QuestionIndex: 1, Kind: domain.AnswerTimeout}
	if err := store.RecordAnswer(ctx, answer, app.AttemptProgress{AttemptID: "a1", FromIndex: 1, NextIndex: 2}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if err := store.ResetAttempt(ctx, "p1", "quiz-1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if _, err := store.AttemptByPlayerQuiz(ctx, "p1", "quiz-1"); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt gone, got %v", err)
	}
	if _, err := store.Answer(ctx, "a1", "q1"); !errors.Is(err, domain.ErrAnswerNotFound) {
		t.Fatalf("expected answers gone, got %v", err)
	}
}
