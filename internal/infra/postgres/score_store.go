package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"daily-trivia-service/internal/domain"
)

// ScoreStore reads finalized daily scores. Reporting-only: it never joins
// against the attempt tables and never blocks attempt writes.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

const scoreColumns = `quiz_id, player_id, score, total_time_ms, correct_count, completed_at`

func (s *ScoreStore) Score(ctx context.Context, quizID, playerID string) (domain.DailyScore, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM daily_scores
		 WHERE quiz_id = $1 AND player_id = $2`,
		quizID, playerID)
	var score domain.DailyScore
	err := row.Scan(&score.QuizID, &score.PlayerID, &score.Score,
		&score.TotalTimeMs, &score.CorrectCount, &score.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyScore{}, domain.ErrNoScoreInWindow
	}
	if err != nil {
		return domain.DailyScore{}, fmt.Errorf("get daily score: %w", err)
	}
	return score, nil
}

func (s *ScoreStore) ScoresForQuiz(ctx context.Context, quizID string) ([]domain.DailyScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM daily_scores WHERE quiz_id = $1`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list scores for quiz: %w", err)
	}
	return collectScores(rows)
}

func (s *ScoreStore) ScoresSince(ctx context.Context, cutoff time.Time) ([]domain.DailyScore, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM daily_scores WHERE completed_at >= $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list scores since: %w", err)
	}
	return collectScores(rows)
}

func collectScores(rows pgx.Rows) ([]domain.DailyScore, error) {
	defer rows.Close()
	var scores []domain.DailyScore
	for rows.Next() {
		var score domain.DailyScore
		if err := rows.Scan(&score.QuizID, &score.PlayerID, &score.Score,
			&score.TotalTimeMs, &score.CorrectCount, &score.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan daily score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// HandleDirectory resolves display handles from the externally owned
// player_handles table.
type HandleDirectory struct {
	pool *pgxpool.Pool
}

func NewHandleDirectory(pool *pgxpool.Pool) *HandleDirectory {
	return &HandleDirectory{pool: pool}
}

func (d *HandleDirectory) Handles(ctx context.Context, playerIDs []string) (map[string]string, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT player_id, handle FROM player_handles WHERE player_id = ANY($1)`,
		playerIDs)
	if err != nil {
		return nil, fmt.Errorf("list handles: %w", err)
	}
	defer rows.Close()

	handles := make(map[string]string, len(playerIDs))
	for rows.Next() {
		var playerID, handle string
		if err := rows.Scan(&playerID, &handle); err != nil {
			return nil, fmt.Errorf("scan handle: %w", err)
		}
		handles[playerID] = handle
	}
	return handles, rows.Err()
}
