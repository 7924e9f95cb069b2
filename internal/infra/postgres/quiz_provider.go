package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"daily-trivia-service/internal/domain"
)

// QuizProvider loads published quiz JSONB from Postgres. The full document
// (including correct flags) never leaves this package except through
// LoadQuiz, which only server-side callers hold.
type QuizProvider struct {
	pool *pgxpool.Pool
}

func NewQuizProvider(pool *pgxpool.Pool) *QuizProvider {
	return &QuizProvider{pool: pool}
}

func (p *QuizProvider) CurrentQuiz(ctx context.Context) (domain.QuizInfo, error) {
	var info domain.QuizInfo
	err := p.pool.QueryRow(ctx,
		`SELECT id, release_at FROM quizzes
		 WHERE release_at <= now()
		 ORDER BY release_at DESC
		 LIMIT 1`).Scan(&info.ID, &info.ReleaseAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizInfo{}, domain.ErrNoActiveQuiz
	}
	if err != nil {
		return domain.QuizInfo{}, fmt.Errorf("current quiz: %w", err)
	}
	return info, nil
}

// LoadQuiz returns the full quiz document. Server-side only.
func (p *QuizProvider) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id = $1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.ID = quizID
	return quiz, nil
}

func (p *QuizProvider) QuestionAt(ctx context.Context, quizID string, index int) (domain.Question, error) {
	quiz, err := p.LoadQuiz(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	question, ok := quiz.QuestionAt(index)
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return question, nil
}

func (p *QuizProvider) CorrectOption(ctx context.Context, quizID, questionID string) (string, error) {
	quiz, err := p.LoadQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	optionID, ok := quiz.CorrectOptionID(questionID)
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	return optionID, nil
}
