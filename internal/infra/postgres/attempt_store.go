package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"daily-trivia-service/internal/app"
	"daily-trivia-service/internal/domain"
)

// uniqueViolation is the SQLSTATE for unique-constraint hits; both
// concurrency anchors (attempt and answer rows) funnel through it.
const uniqueViolation = "23505"

// AttemptStore persists attempts, answers, and daily scores in Postgres.
// The unique constraints on (player_id, quiz_id) and
// (attempt_id, question_id) are the only serialization points; writers that
// hit them report domain duplicate errors and let the engine re-read.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

const attemptColumns = `id, player_id, quiz_id, current_index,
	current_question_started_at, current_question_expires_at,
	total_score, total_time_ms, finalized_at, created_at`

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		attempt.ID, attempt.PlayerID, attempt.QuizID, attempt.CurrentIndex,
		attempt.QuestionStartedAt, attempt.QuestionExpiresAt,
		attempt.TotalScore, attempt.TotalTimeMs, attempt.FinalizedAt, attempt.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAttempt
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) AttemptByID(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, attemptID)
	return scanAttempt(row)
}

func (s *AttemptStore) AttemptByPlayerQuiz(ctx context.Context, playerID, quizID string) (domain.Attempt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE player_id = $1 AND quiz_id = $2`,
		playerID, quizID)
	return scanAttempt(row)
}

const answerColumns = `attempt_id, question_id, question_index, answer_kind,
	selected_option_id, is_correct, time_ms, base_points, bonus_points, answered_at`

func (s *AttemptStore) Answer(ctx context.Context, attemptID, questionID string) (domain.AttemptAnswer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM attempt_answers
		 WHERE attempt_id = $1 AND question_id = $2`,
		attemptID, questionID)
	answer, err := scanAnswer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttemptAnswer{}, domain.ErrAnswerNotFound
	}
	return answer, err
}

func (s *AttemptStore) Answers(ctx context.Context, attemptID string) ([]domain.AttemptAnswer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM attempt_answers
		 WHERE attempt_id = $1 ORDER BY question_index`,
		attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.AttemptAnswer
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	return answers, rows.Err()
}

// RecordAnswer inserts the answer row and advances the attempt in one
// transaction: either both land or neither does.
func (s *AttemptStore) RecordAnswer(ctx context.Context, answer domain.AttemptAnswer, progress app.AttemptProgress) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record answer: %w", err)
	}
	defer tx.Rollback(ctx)

	var selected *string
	if answer.SelectedOptionID != "" {
		selected = &answer.SelectedOptionID
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO attempt_answers (`+answerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		answer.AttemptID, answer.QuestionID, answer.QuestionIndex, string(answer.Kind),
		selected, answer.IsCorrect, answer.TimeMs,
		answer.BasePoints, answer.BonusPoints, answer.AnsweredAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateAnswer
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	// The index guard keeps a slow writer from clobbering an attempt that
	// advanced underneath it; finalized attempts are immutable outright.
	tag, err := tx.Exec(ctx,
		`UPDATE attempts SET
		    current_index = $3,
		    current_question_started_at = $4,
		    current_question_expires_at = $5,
		    total_score = $6,
		    total_time_ms = $7
		 WHERE id = $1 AND current_index = $2 AND finalized_at IS NULL`,
		progress.AttemptID, progress.FromIndex, progress.NextIndex,
		progress.QuestionStartedAt, progress.QuestionExpiresAt,
		progress.TotalScore, progress.TotalTimeMs,
	)
	if err != nil {
		return fmt.Errorf("advance attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleAttempt
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record answer: %w", err)
	}
	return nil
}

// Finalize stamps the attempt and upserts its daily score atomically. The
// finalized_at IS NULL guard makes a repeat call a no-op on the attempt
// while the upsert keeps finalize retry-safe.
func (s *AttemptStore) Finalize(ctx context.Context, attemptID string, finalizedAt time.Time, score domain.DailyScore) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE attempts SET finalized_at = $2
		 WHERE id = $1 AND finalized_at IS NULL`,
		attemptID, finalizedAt)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already finalized by an earlier call; leave its score alone.
		return nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO daily_scores (quiz_id, player_id, score, total_time_ms, correct_count, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (quiz_id, player_id) DO UPDATE SET
		    score = EXCLUDED.score,
		    total_time_ms = EXCLUDED.total_time_ms,
		    correct_count = EXCLUDED.correct_count,
		    completed_at = EXCLUDED.completed_at`,
		score.QuizID, score.PlayerID, score.Score,
		score.TotalTimeMs, score.CorrectCount, score.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert daily score: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}

// ResetAttempt wipes one player's rows for a quiz. Development-only.
func (s *AttemptStore) ResetAttempt(ctx context.Context, playerID, quizID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM attempt_answers WHERE attempt_id IN (
		    SELECT id FROM attempts WHERE player_id = $1 AND quiz_id = $2)`,
		playerID, quizID)
	if err != nil {
		return fmt.Errorf("reset answers: %w", err)
	}
	_, err = tx.Exec(ctx,
		`DELETE FROM attempts WHERE player_id = $1 AND quiz_id = $2`,
		playerID, quizID)
	if err != nil {
		return fmt.Errorf("reset attempt: %w", err)
	}
	_, err = tx.Exec(ctx,
		`DELETE FROM daily_scores WHERE player_id = $1 AND quiz_id = $2`,
		playerID, quizID)
	if err != nil {
		return fmt.Errorf("reset daily score: %w", err)
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (domain.Attempt, error) {
	var a domain.Attempt
	err := row.Scan(&a.ID, &a.PlayerID, &a.QuizID, &a.CurrentIndex,
		&a.QuestionStartedAt, &a.QuestionExpiresAt,
		&a.TotalScore, &a.TotalTimeMs, &a.FinalizedAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	return a, nil
}

func scanAnswer(row rowScanner) (domain.AttemptAnswer, error) {
	var a domain.AttemptAnswer
	var kind string
	var selected *string
	err := row.Scan(&a.AttemptID, &a.QuestionID, &a.QuestionIndex, &kind,
		&selected, &a.IsCorrect, &a.TimeMs,
		&a.BasePoints, &a.BonusPoints, &a.AnsweredAt)
	if err != nil {
		return domain.AttemptAnswer{}, err
	}
	a.Kind = domain.AnswerKind(kind)
	if selected != nil {
		a.SelectedOptionID = *selected
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
