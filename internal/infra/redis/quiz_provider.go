package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"daily-trivia-service/internal/domain"
)

// QuizLoader fetches the full quiz document from the backing store.
type QuizLoader interface {
	CurrentQuiz(ctx context.Context) (domain.QuizInfo, error)
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizProvider caches published quizzes in Redis and falls back to a loader
// on cache miss. The document is stored as: SET quiz:{quizID}:doc {json}
// Correct answers are stored as:  HSET quiz:{quizID}:answers {questionID} {optionID}
// The answers hash only ever feeds server-side scoring; nothing read from
// it is returned to clients.
type QuizProvider struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuizProvider(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizProvider {
	return &QuizProvider{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *QuizProvider) CurrentQuiz(ctx context.Context) (domain.QuizInfo, error) {
	return p.loader.CurrentQuiz(ctx)
}

func (p *QuizProvider) QuestionAt(ctx context.Context, quizID string, index int) (domain.Question, error) {
	quiz, err := p.getQuiz(ctx, quizID)
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
	optionID, err := p.client.HGet(ctx, p.answersKey(quizID), questionID).Result()
	if err == nil && optionID != "" {
		return optionID, nil
	}

	quiz, err := p.getQuiz(ctx, quizID)
	if err != nil {
		return "", err
	}
	optionID, ok := quiz.CorrectOptionID(questionID)
	if !ok {
		return "", domain.ErrQuestionNotFound
	}
	return optionID, nil
}

func (p *QuizProvider) getQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	raw, err := p.client.Get(ctx, p.docKey(quizID)).Bytes()
	if err == nil && len(raw) > 0 {
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err == nil {
			return quiz, nil
		}
	}

	result, err, _ := p.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := p.client.Get(ctx, p.docKey(quizID)).Bytes()
		if err == nil && len(raw) > 0 {
			var quiz domain.Quiz
			if err := json.Unmarshal(raw, &quiz); err == nil {
				return quiz, nil
			}
		}

		quiz, err := p.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		doc, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("marshal quiz: %w", err)
		}
		ttl := p.ttlWithJitter()
		pipe := p.client.Pipeline()
		pipe.Set(ctx, p.docKey(quizID), doc, ttl)
		for _, question := range quiz.Questions {
			if optionID, ok := quiz.CorrectOptionID(question.ID); ok {
				pipe.HSet(ctx, p.answersKey(quizID), question.ID, optionID)
			}
		}
		if ttl > 0 {
			pipe.Expire(ctx, p.answersKey(quizID), ttl)
		}
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (p *QuizProvider) docKey(quizID string) string {
	return "quiz:" + quizID + ":doc"
}

func (p *QuizProvider) answersKey(quizID string) string {
	return "quiz:" + quizID + ":answers"
}

func (p *QuizProvider) ttlWithJitter() time.Duration {
	if p.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(p.ttl) / 10
	return p.ttl + time.Duration(p.rnd.Int63n(jitterMax+1))
}
