package memory

import (
	"context"
	"sync"
	"time"

	"daily-trivia-service/internal/domain"
)

// QuizProvider serves published quizzes from an in-memory map, picking the
// current quiz as the latest one whose release time has passed. Useful for
// tests and infrastructure-less demo runs.
type QuizProvider struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	clock   func() time.Time
}

func NewQuizProvider(quizzes map[string]domain.Quiz) *QuizProvider {
	return NewQuizProviderWithClock(quizzes, time.Now)
}

// NewQuizProviderWithClock is test-only for deterministic release checks.
func NewQuizProviderWithClock(quizzes map[string]domain.Quiz, clock func() time.Time) *QuizProvider {
	if quizzes == nil {
		quizzes = make(map[string]domain.Quiz)
	}
	return &QuizProvider{quizzes: quizzes, clock: clock}
}

func (p *QuizProvider) CurrentQuiz(_ context.Context) (domain.QuizInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	now := p.clock()
	var current domain.QuizInfo
	found := false
	for _, quiz := range p.quizzes {
		if quiz.ReleaseAt.After(now) {
			continue
		}
		if !found || quiz.ReleaseAt.After(current.ReleaseAt) {
			current = domain.QuizInfo{ID: quiz.ID, ReleaseAt: quiz.ReleaseAt}
			found = true
		}
	}
	if !found {
		return domain.QuizInfo{}, domain.ErrNoActiveQuiz
	}
	return current, nil
}

// LoadQuiz returns the full quiz document, correct flags included.
// Server-side only; satisfies the redis cache's loader contract.
func (p *QuizProvider) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	quiz, ok := p.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (p *QuizProvider) QuestionAt(_ context.Context, quizID string, index int) (domain.Question, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	quiz, ok := p.quizzes[quizID]
	if !ok {
		return domain.Question{}, domain.ErrQuizNotFound
	}
	question, ok := quiz.QuestionAt(index)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return question, nil
}

func (p *QuizProvider) CorrectOption(_ context.Context, quizID, questionID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	quiz, ok := p.quizzes[quizID]
	if !ok {
		return "", domain.ErrQuizNotFound
	}
	optionID, ok := quiz.CorrectOptionID(questionID)
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	return optionID, nil
}

// HandleDirectory is a static in-memory app.HandleDirectory.
type HandleDirectory struct {
	handles map[string]string
}

func NewHandleDirectory(handles map[string]string) *HandleDirectory {
	if handles == nil {
		handles = make(map[string]string)
	}
	return &HandleDirectory{handles: handles}
}

func (d *HandleDirectory) Handles(_ context.Context, playerIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(playerIDs))
	for _, id := range playerIDs {
		if handle, ok := d.handles[id]; ok {
			out[id] = handle
		}
	}
	return out, nil
}
