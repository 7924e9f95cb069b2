package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"daily-trivia-service/internal/domain"
)

// Window selects which daily scores a ranking considers.
type Window string

const (
	WindowToday Window = "today"
	Window7d    Window = "7d"
	Window30d   Window = "30d"
	Window365d  Window = "365d"
)

// ScoreType picks the per-player aggregation.
type ScoreType string

const (
	ScoreCumulative ScoreType = "cumulative"
	ScoreAverage    ScoreType = "average"
)

// Mode picks the slice of the ranked list to return.
type Mode string

const (
	ModeTop    Mode = "top"
	ModeAround Mode = "around"
)

// DefaultTopLimit is how many entries ModeTop returns if unspecified.
const DefaultTopLimit = 100

// aroundSize is the fixed size of a ModeAround slice.
const aroundSize = 12

// HandleDirectory resolves player ids to display handles. Profile data is
// owned by an external service; missing handles fall back to the player id.
type HandleDirectory interface {
	Handles(ctx context.Context, playerIDs []string) (map[string]string, error)
}

// RankQuery describes one leaderboard request.
type RankQuery struct {
	Window    Window
	ScoreType ScoreType
	Mode      Mode
	Limit     int    // ModeTop only; defaults to DefaultTopLimit
	ViewerID  string // ModeAround only
}

// RankedEntry is one leaderboard line. It never carries per-question data.
type RankedEntry struct {
	Rank                int       `json:"rank"`
	PlayerID            string    `json:"playerId"`
	Handle              string    `json:"handle"`
	Score               float64   `json:"score"`
	Attempts            int       `json:"attempts"`
	TotalTimeMs         int64     `json:"totalTimeMs"`
	EarliestCompletedAt time.Time `json:"earliestCompletedAt"`
}

// RankResult is the outcome of a leaderboard query.
type RankResult struct {
	Entries      []RankedEntry `json:"entries"`
	ViewerRank   int           `json:"viewerRank,omitempty"` // 0 when no viewer in scope
	TotalPlayers int           `json:"totalPlayers"`
}

// LeaderboardService ranks finalized daily scores. It is read-only and
// consumes the attempt engine's output asynchronously; a just-finalized
// score showing up a moment late is acceptable.
type LeaderboardService struct {
	scores  ScoreStore
	quizzes QuizProvider
	handles HandleDirectory
	now     func() time.Time
}

func NewLeaderboardService(scores ScoreStore, quizzes QuizProvider, handles HandleDirectory) *LeaderboardService {
	return NewLeaderboardServiceWithClock(scores, quizzes, handles, time.Now)
}

// NewLeaderboardServiceWithClock is test-only for deterministic windows.
func NewLeaderboardServiceWithClock(scores ScoreStore, quizzes QuizProvider, handles HandleDirectory, now func() time.Time) *LeaderboardService {
	return &LeaderboardService{scores: scores, quizzes: quizzes, handles: handles, now: now}
}

// Rank aggregates, orders, and slices the leaderboard for one query.
func (s *LeaderboardService) Rank(ctx context.Context, q RankQuery) (RankResult, error) {
	rows, err := s.windowScores(ctx, q.Window)
	if err != nil {
		return RankResult{}, err
	}

	entries, err := s.aggregate(ctx, rows, q.ScoreType)
	if err != nil {
		return RankResult{}, err
	}

	result := RankResult{TotalPlayers: len(entries)}
	switch q.Mode {
	case ModeTop, "":
		limit := q.Limit
		if limit <= 0 {
			limit = DefaultTopLimit
		}
		if limit > len(entries) {
			limit = len(entries)
		}
		result.Entries = entries[:limit]
	case ModeAround:
		viewerRank := 0
		for _, entry := range entries {
			if entry.PlayerID == q.ViewerID {
				viewerRank = entry.Rank
				break
			}
		}
		if viewerRank == 0 {
			return RankResult{}, domain.ErrNoScoreInWindow
		}
		result.ViewerRank = viewerRank
		result.Entries = aroundSlice(entries, viewerRank)
	default:
		return RankResult{}, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, q.Mode)
	}
	return result, nil
}

func (s *LeaderboardService) windowScores(ctx context.Context, window Window) ([]domain.DailyScore, error) {
	switch window {
	case WindowToday, "":
		info, err := s.quizzes.CurrentQuiz(ctx)
		if err != nil {
			return nil, err
		}
		return s.scores.ScoresForQuiz(ctx, info.ID)
	case Window7d:
		return s.scores.ScoresSince(ctx, s.now().AddDate(0, 0, -7))
	case Window30d:
		return s.scores.ScoresSince(ctx, s.now().AddDate(0, 0, -30))
	case Window365d:
		return s.scores.ScoresSince(ctx, s.now().AddDate(0, 0, -365))
	default:
		return nil, fmt.Errorf("%w: unknown window %q", domain.ErrInvalidInput, window)
	}
}

type playerTotals struct {
	playerID string
	scoreSum int
	attempts int
	timeMs   int64
	earliest time.Time
}

func (s *LeaderboardService) aggregate(ctx context.Context, rows []domain.DailyScore, scoreType ScoreType) ([]RankedEntry, error) {
	byPlayer := make(map[string]*playerTotals)
	order := make([]string, 0)
	for _, row := range rows {
		totals, ok := byPlayer[row.PlayerID]
		if !ok {
			totals = &playerTotals{playerID: row.PlayerID, earliest: row.CompletedAt}
			byPlayer[row.PlayerID] = totals
			order = append(order, row.PlayerID)
		}
		totals.scoreSum += row.Score
		totals.attempts++
		totals.timeMs += row.TotalTimeMs
		if row.CompletedAt.Before(totals.earliest) {
			totals.earliest = row.CompletedAt
		}
	}

	entries := make([]RankedEntry, 0, len(order))
	for _, playerID := range order {
		totals := byPlayer[playerID]
		score := float64(totals.scoreSum)
		if scoreType == ScoreAverage {
			score = float64(totals.scoreSum) / float64(totals.attempts)
		}
		entries = append(entries, RankedEntry{
			PlayerID:            totals.playerID,
			Score:               score,
			Attempts:            totals.attempts,
			TotalTimeMs:         totals.timeMs,
			EarliestCompletedAt: totals.earliest,
		})
	}

	// Total order: score desc, total time asc, earliest completion asc,
	// player id asc. The final key makes pagination and tests stable.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalTimeMs != b.TotalTimeMs {
			return a.TotalTimeMs < b.TotalTimeMs
		}
		if !a.EarliestCompletedAt.Equal(b.EarliestCompletedAt) {
			return a.EarliestCompletedAt.Before(b.EarliestCompletedAt)
		}
		return a.PlayerID < b.PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	if err := s.fillHandles(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *LeaderboardService) fillHandles(ctx context.Context, entries []RankedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.PlayerID)
	}
	handles, err := s.handles.Handles(ctx, ids)
	if err != nil {
		return err
	}
	for i := range entries {
		if handle, ok := handles[entries[i].PlayerID]; ok && handle != "" {
			entries[i].Handle = handle
		} else {
			entries[i].Handle = entries[i].PlayerID
		}
	}
	return nil
}

// aroundSlice returns the 12-entry window centered on the viewer: ranks
// 1..12 when the viewer sits in the top 6, otherwise 5 above and 6 below,
// clamped to the list bounds.
func aroundSlice(entries []RankedEntry, viewerRank int) []RankedEntry {
	if len(entries) <= aroundSize {
		return entries
	}
	start := 0
	if viewerRank > 6 {
		start = viewerRank - 6 // viewer at position 6 of 12
		if start+aroundSize > len(entries) {
			start = len(entries) - aroundSize
		}
	}
	return entries[start : start+aroundSize]
}
