package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"daily-trivia-service/internal/domain"
	"daily-trivia-service/internal/scoring"
)

// AttemptStore persists attempts, answers, and finalized scores. Mutating
// methods must enforce the two uniqueness anchors: one attempt per
// (player, quiz) and one answer per (attempt, question). Implementations
// report constraint hits with domain.ErrDuplicateAttempt /
// domain.ErrDuplicateAnswer so the engine can converge on the winner's row.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error)
	AttemptByPlayerQuiz(ctx context.Context, playerID, quizID string) (domain.Attempt, error)
	Answer(ctx context.Context, attemptID, questionID string) (domain.AttemptAnswer, error)
	Answers(ctx context.Context, attemptID string) ([]domain.AttemptAnswer, error)
	// RecordAnswer inserts the answer row and applies the progress update
	// atomically. It must fail with domain.ErrDuplicateAnswer when the
	// answer row already exists and domain.ErrStaleAttempt when the attempt
	// is no longer at progress.FromIndex.
	RecordAnswer(ctx context.Context, answer domain.AttemptAnswer, progress AttemptProgress) error
	// Finalize stamps finalized_at and upserts the daily score in one
	// transaction. Already-finalized attempts are left untouched.
	Finalize(ctx context.Context, attemptID string, finalizedAt time.Time, score domain.DailyScore) error
	// ResetAttempt wipes one player's attempt, answers, and daily score for
	// a quiz. Development-only escape hatch; never called in request flow.
	ResetAttempt(ctx context.Context, playerID, quizID string) error
}

// ScoreStore is the read side the leaderboard consumes.
type ScoreStore interface {
	Score(ctx context.Context, quizID, playerID string) (domain.DailyScore, error)
	ScoresForQuiz(ctx context.Context, quizID string) ([]domain.DailyScore, error)
	ScoresSince(ctx context.Context, cutoff time.Time) ([]domain.DailyScore, error)
}

// QuizProvider exposes published quiz content. CorrectOption is reachable
// only from server-side code; nothing it returns may be serialized into a
// client response.
type QuizProvider interface {
	CurrentQuiz(ctx context.Context) (domain.QuizInfo, error)
	QuestionAt(ctx context.Context, quizID string, index int) (domain.Question, error)
	CorrectOption(ctx context.Context, quizID, questionID string) (string, error)
}

// AttemptProgress is the attempt-side half of recording an answer: advance
// the index, add the points and elapsed time, and start (or clear) the next
// question's clock. FromIndex guards against concurrent advancement.
type AttemptProgress struct {
	AttemptID         string
	FromIndex         int
	NextIndex         int
	QuestionStartedAt *time.Time // nil once past the last question
	QuestionExpiresAt *time.Time
	TotalScore        int
	TotalTimeMs       int64
}

// AttemptService is the attempt lifecycle engine: start/resume, submit,
// finalize. All timing decisions use the injected clock; client-supplied
// times are never consulted.
type AttemptService struct {
	store   AttemptStore
	quizzes QuizProvider
	now     func() time.Time
}

func NewAttemptService(store AttemptStore, quizzes QuizProvider) *AttemptService {
	return NewAttemptServiceWithClock(store, quizzes, time.Now)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps.
func NewAttemptServiceWithClock(store AttemptStore, quizzes QuizProvider, now func() time.Time) *AttemptService {
	return &AttemptService{store: store, quizzes: quizzes, now: now}
}

// CurrentQuiz reports the quiz currently accepting attempts.
func (s *AttemptService) CurrentQuiz(ctx context.Context) (domain.QuizInfo, error) {
	return s.quizzes.CurrentQuiz(ctx)
}

// AttemptProgressView is the player-facing snapshot returned by
// StartOrResume and SubmitAnswer.
type AttemptProgressView struct {
	AttemptID    string              `json:"attemptId"`
	QuizID       string              `json:"quizId"`
	State        domain.AttemptState `json:"state"`
	CurrentIndex int                 `json:"currentIndex"`
	Question     *domain.Question    `json:"question,omitempty"`
	Deadline     *time.Time          `json:"deadline,omitempty"`
	TotalScore   int                 `json:"totalScore"`
	TotalTimeMs  int64               `json:"totalTimeMs"`
}

// StartOrResume lazily creates the player's attempt for the quiz, or
// resumes the existing one. Resuming sweeps forward through any questions
// whose deadline passed while the player was away, recording timeouts
// through the same path a submit would take. Concurrent duplicate starts
// converge on the single persisted row.
func (s *AttemptService) StartOrResume(ctx context.Context, playerID, quizID string) (AttemptProgressView, error) {
	if strings.TrimSpace(playerID) == "" || strings.TrimSpace(quizID) == "" {
		return AttemptProgressView{}, fmt.Errorf("%w: player and quiz ids are required", domain.ErrInvalidInput)
	}

	attempt, err := s.store.AttemptByPlayerQuiz(ctx, playerID, quizID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		attempt, err = s.createAttempt(ctx, playerID, quizID)
	}
	if err != nil {
		return AttemptProgressView{}, err
	}

	if attempt.State() == domain.StateInProgress {
		attempt, err = s.sweepExpired(ctx, attempt)
		if err != nil {
			return AttemptProgressView{}, err
		}
	}
	return s.progressView(ctx, attempt)
}

func (s *AttemptService) createAttempt(ctx context.Context, playerID, quizID string) (domain.Attempt, error) {
	// Verify the quiz is published and has a first question before
	// creating anything.
	if _, err := s.quizzes.QuestionAt(ctx, quizID, 1); err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	expires := now.Add(scoring.QuestionTimeLimit)
	attempt := domain.Attempt{
		ID:                uuid.NewString(),
		PlayerID:          playerID,
		QuizID:            quizID,
		CurrentIndex:      1,
		QuestionStartedAt: &now,
		QuestionExpiresAt: &expires,
		CreatedAt:         now,
	}
	err := s.store.CreateAttempt(ctx, attempt)
	if errors.Is(err, domain.ErrDuplicateAttempt) {
		// A concurrent start won the race; its row is the attempt.
		return s.store.AttemptByPlayerQuiz(ctx, playerID, quizID)
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

// sweepExpired advances the attempt past every question whose deadline has
// already passed, synthesizing a timeout answer for each. During the sweep
// the next question's clock starts at the previous question's expiry, so an
// absence of two time limits resolves to exactly two timeouts.
func (s *AttemptService) sweepExpired(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	for attempt.CurrentIndex <= scoring.MaxQuestions &&
		attempt.QuestionExpiresAt != nil &&
		!s.now().Before(*attempt.QuestionExpiresAt) {

		question, err := s.quizzes.QuestionAt(ctx, attempt.QuizID, attempt.CurrentIndex)
		if err != nil {
			return domain.Attempt{}, err
		}
		expiredAt := *attempt.QuestionExpiresAt
		updated, _, err := s.recordAnswer(ctx, attempt, question, "", true, expiredAt)
		if err != nil {
			return domain.Attempt{}, err
		}
		attempt = updated
	}
	return attempt, nil
}

// SubmitResultView reports one scored question plus the next state.
type SubmitResultView struct {
	Answer   domain.AttemptAnswer `json:"answer"`
	Progress AttemptProgressView  `json:"progress"`
}

// SubmitAnswer scores the attempt's current question. Safe to retry:
// a repeated call with the same question returns the stored result without
// recomputing, and a concurrent duplicate converges on whichever writer's
// row landed first. The server clock is the only timing authority.
func (s *AttemptService) SubmitAnswer(ctx context.Context, playerID, attemptID, questionID, selectedOptionID string) (SubmitResultView, error) {
	if strings.TrimSpace(attemptID) == "" || strings.TrimSpace(questionID) == "" {
		return SubmitResultView{}, fmt.Errorf("%w: attempt and question ids are required", domain.ErrInvalidInput)
	}

	attempt, err := s.ownedAttempt(ctx, playerID, attemptID)
	if err != nil {
		return SubmitResultView{}, err
	}
	if attempt.State() == domain.StateFinalized {
		return SubmitResultView{}, domain.ErrAttemptCompleted
	}

	// Idempotent replay: the first recorded outcome for this question is
	// the outcome, regardless of how many times the client retries.
	if existing, err := s.store.Answer(ctx, attemptID, questionID); err == nil {
		return s.submitResult(ctx, attempt, existing)
	} else if !errors.Is(err, domain.ErrAnswerNotFound) {
		return SubmitResultView{}, err
	}

	if attempt.CurrentIndex > scoring.MaxQuestions || attempt.QuestionStartedAt == nil {
		return SubmitResultView{}, domain.ErrQuestionNotCurrent
	}
	question, err := s.quizzes.QuestionAt(ctx, attempt.QuizID, attempt.CurrentIndex)
	if err != nil {
		return SubmitResultView{}, err
	}
	if question.ID != questionID {
		return SubmitResultView{}, domain.ErrQuestionNotCurrent
	}

	isTimeout := !s.now().Before(*attempt.QuestionExpiresAt)
	updated, answer, err := s.recordAnswer(ctx, attempt, question, selectedOptionID, isTimeout, s.now())
	if err != nil {
		return SubmitResultView{}, err
	}
	return s.submitResult(ctx, updated, answer)
}

// recordAnswer scores and persists one answer, advancing the attempt. Both
// live submits and the resume sweep funnel through here. nextClockStart is
// when the following question's time budget begins. On a duplicate-answer
// or stale-attempt race the winner's state is re-read and returned.
func (s *AttemptService) recordAnswer(ctx context.Context, attempt domain.Attempt, question domain.Question, selectedOptionID string, isTimeout bool, nextClockStart time.Time) (domain.Attempt, domain.AttemptAnswer, error) {
	isCorrect := false
	if !isTimeout {
		correctID, err := s.quizzes.CorrectOption(ctx, attempt.QuizID, question.ID)
		if err != nil {
			return domain.Attempt{}, domain.AttemptAnswer{}, err
		}
		isCorrect = selectedOptionID == correctID
	}

	elapsedMs := int64(0)
	if attempt.QuestionStartedAt != nil {
		elapsedMs = s.now().Sub(*attempt.QuestionStartedAt).Milliseconds()
	}
	breakdown := scoring.Score(isCorrect, elapsedMs, isTimeout)

	answer := domain.AttemptAnswer{
		AttemptID:     attempt.ID,
		QuestionID:    question.ID,
		QuestionIndex: attempt.CurrentIndex,
		Kind:          domain.AnswerSelected,
		IsCorrect:     isCorrect,
		TimeMs:        breakdown.ElapsedMs,
		BasePoints:    breakdown.BasePoints,
		BonusPoints:   breakdown.BonusPoints,
		AnsweredAt:    s.now(),
	}
	if isTimeout {
		answer.Kind = domain.AnswerTimeout
	} else {
		answer.SelectedOptionID = selectedOptionID
	}

	progress := AttemptProgress{
		AttemptID:   attempt.ID,
		FromIndex:   attempt.CurrentIndex,
		NextIndex:   attempt.CurrentIndex + 1,
		TotalScore:  attempt.TotalScore + breakdown.TotalPoints,
		TotalTimeMs: attempt.TotalTimeMs + breakdown.ElapsedMs,
	}
	if progress.NextIndex <= scoring.MaxQuestions {
		started := nextClockStart
		expires := started.Add(scoring.QuestionTimeLimit)
		progress.QuestionStartedAt = &started
		progress.QuestionExpiresAt = &expires
	}

	err := s.store.RecordAnswer(ctx, answer, progress)
	if errors.Is(err, domain.ErrDuplicateAnswer) || errors.Is(err, domain.ErrStaleAttempt) {
		// Lost a race; discard our result in favor of the winner's rows.
		winner, rerr := s.store.Answer(ctx, attempt.ID, question.ID)
		if rerr != nil {
			return domain.Attempt{}, domain.AttemptAnswer{}, rerr
		}
		refreshed, rerr := s.store.AttemptByID(ctx, attempt.ID)
		if rerr != nil {
			return domain.Attempt{}, domain.AttemptAnswer{}, rerr
		}
		return refreshed, winner, nil
	}
	if err != nil {
		return domain.Attempt{}, domain.AttemptAnswer{}, err
	}

	attempt.CurrentIndex = progress.NextIndex
	attempt.QuestionStartedAt = progress.QuestionStartedAt
	attempt.QuestionExpiresAt = progress.QuestionExpiresAt
	attempt.TotalScore = progress.TotalScore
	attempt.TotalTimeMs = progress.TotalTimeMs
	return attempt, answer, nil
}

// Finalize seals a completed attempt and publishes its daily score.
// Idempotent: finalizing an already-finalized attempt returns the existing
// score unchanged.
func (s *AttemptService) Finalize(ctx context.Context, playerID, attemptID string) (domain.DailyScore, error) {
	attempt, err := s.ownedAttempt(ctx, playerID, attemptID)
	if err != nil {
		return domain.DailyScore{}, err
	}

	answers, err := s.store.Answers(ctx, attempt.ID)
	if err != nil {
		return domain.DailyScore{}, err
	}
	if missing := missingIndexes(answers); len(missing) > 0 {
		return domain.DailyScore{}, &domain.IncompleteAttemptError{Missing: missing}
	}

	correct := 0
	for _, answer := range answers {
		if answer.IsCorrect {
			correct++
		}
	}
	score := domain.DailyScore{
		QuizID:       attempt.QuizID,
		PlayerID:     attempt.PlayerID,
		Score:        attempt.TotalScore,
		TotalTimeMs:  attempt.TotalTimeMs,
		CorrectCount: correct,
		CompletedAt:  s.now(),
	}
	if attempt.FinalizedAt != nil {
		score.CompletedAt = *attempt.FinalizedAt
		return score, nil
	}

	if err := s.store.Finalize(ctx, attempt.ID, score.CompletedAt, score); err != nil {
		return domain.DailyScore{}, err
	}
	return score, nil
}

// Reset wipes the player's attempt for a quiz. Development-only; the serve
// path never reaches it.
func (s *AttemptService) Reset(ctx context.Context, playerID, quizID string) error {
	return s.store.ResetAttempt(ctx, playerID, quizID)
}

func (s *AttemptService) ownedAttempt(ctx context.Context, playerID, attemptID string) (domain.Attempt, error) {
	attempt, err := s.store.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	// Ownership mismatch reads as not-found so attempt ids cannot be probed.
	if attempt.PlayerID != playerID {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptService) progressView(ctx context.Context, attempt domain.Attempt) (AttemptProgressView, error) {
	view := AttemptProgressView{
		AttemptID:    attempt.ID,
		QuizID:       attempt.QuizID,
		State:        attempt.State(),
		CurrentIndex: attempt.CurrentIndex,
		TotalScore:   attempt.TotalScore,
		TotalTimeMs:  attempt.TotalTimeMs,
	}
	if view.State != domain.StateInProgress {
		return view, nil
	}
	question, err := s.quizzes.QuestionAt(ctx, attempt.QuizID, attempt.CurrentIndex)
	if err != nil {
		return AttemptProgressView{}, err
	}
	view.Question = &question
	view.Deadline = attempt.QuestionExpiresAt
	return view, nil
}

func (s *AttemptService) submitResult(ctx context.Context, attempt domain.Attempt, answer domain.AttemptAnswer) (SubmitResultView, error) {
	progress, err := s.progressView(ctx, attempt)
	if err != nil {
		return SubmitResultView{}, err
	}
	return SubmitResultView{Answer: answer, Progress: progress}, nil
}

func missingIndexes(answers []domain.AttemptAnswer) []int {
	seen := make(map[int]bool, len(answers))
	for _, answer := range answers {
		seen[answer.QuestionIndex] = true
	}
	var missing []int
	for idx := 1; idx <= scoring.MaxQuestions; idx++ {
		if !seen[idx] {
			missing = append(missing, idx)
		}
	}
	return missing
}
