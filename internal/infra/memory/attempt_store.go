package memory

import (
	"context"
	"sync"
	"time"

	"daily-trivia-service/internal/app"
	"daily-trivia-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore and
// app.ScoreStore with the same uniqueness semantics as the SQL schema.
// Used by tests and by postgres-less demo runs.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]domain.Attempt           // by attempt id
	byPlayer map[playerQuizKey]string            // (player, quiz) -> attempt id
	answers  map[string][]domain.AttemptAnswer   // by attempt id, insertion order
	scores   map[playerQuizKey]domain.DailyScore
}

type playerQuizKey struct {
	playerID string
	quizID   string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[string]domain.Attempt),
		byPlayer: make(map[playerQuizKey]string),
		answers:  make(map[string][]domain.AttemptAnswer),
		scores:   make(map[playerQuizKey]domain.DailyScore),
	}
}

func (s *AttemptStore) CreateAttempt(_ context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := playerQuizKey{attempt.PlayerID, attempt.QuizID}
	if _, ok := s.byPlayer[key]; ok {
		return domain.ErrDuplicateAttempt
	}
	s.byPlayer[key] = attempt.ID
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *AttemptStore) AttemptByID(_ context.Context, attemptID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) AttemptByPlayerQuiz(_ context.Context, playerID, quizID string) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPlayer[playerQuizKey{playerID, quizID}]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts[id], nil
}

func (s *AttemptStore) Answer(_ context.Context, attemptID, questionID string) (domain.AttemptAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, answer := range s.answers[attemptID] {
		if answer.QuestionID == questionID {
			return answer, nil
		}
	}
	return domain.AttemptAnswer{}, domain.ErrAnswerNotFound
}

func (s *AttemptStore) Answers(_ context.Context, attemptID string) ([]domain.AttemptAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AttemptAnswer(nil), s.answers[attemptID]...), nil
}

func (s *AttemptStore) RecordAnswer(_ context.Context, answer domain.AttemptAnswer, progress app.AttemptProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[answer.AttemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.FinalizedAt != nil {
		return domain.ErrAttemptCompleted
	}
	for _, existing := range s.answers[answer.AttemptID] {
		if existing.QuestionID == answer.QuestionID {
			return domain.ErrDuplicateAnswer
		}
	}
	if attempt.CurrentIndex != progress.FromIndex {
		return domain.ErrStaleAttempt
	}

	s.answers[answer.AttemptID] = append(s.answers[answer.AttemptID], answer)
	attempt.CurrentIndex = progress.NextIndex
	attempt.QuestionStartedAt = progress.QuestionStartedAt
	attempt.QuestionExpiresAt = progress.QuestionExpiresAt
	attempt.TotalScore = progress.TotalScore
	attempt.TotalTimeMs = progress.TotalTimeMs
	s.attempts[answer.AttemptID] = attempt
	return nil
}

func (s *AttemptStore) Finalize(_ context.Context, attemptID string, finalizedAt time.Time, score domain.DailyScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.FinalizedAt != nil {
		return nil
	}
	attempt.FinalizedAt = &finalizedAt
	s.attempts[attemptID] = attempt
	s.scores[playerQuizKey{score.PlayerID, score.QuizID}] = score
	return nil
}

func (s *AttemptStore) ResetAttempt(_ context.Context, playerID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := playerQuizKey{playerID, quizID}
	if id, ok := s.byPlayer[key]; ok {
		delete(s.attempts, id)
		delete(s.answers, id)
		delete(s.byPlayer, key)
	}
	delete(s.scores, key)
	return nil
}

// Score and the two list methods implement app.ScoreStore.

func (s *AttemptStore) Score(_ context.Context, quizID, playerID string) (domain.DailyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[playerQuizKey{playerID, quizID}]
	if !ok {
		return domain.DailyScore{}, domain.ErrNoScoreInWindow
	}
	return score, nil
}

func (s *AttemptStore) ScoresForQuiz(_ context.Context, quizID string) ([]domain.DailyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DailyScore
	for key, score := range s.scores {
		if key.quizID == quizID {
			out = append(out, score)
		}
	}
	return out, nil
}

func (s *AttemptStore) ScoresSince(_ context.Context, cutoff time.Time) ([]domain.DailyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.DailyScore
	for _, score := range s.scores {
		if !score.CompletedAt.Before(cutoff) {
			out = append(out, score)
		}
	}
	return out, nil
}
