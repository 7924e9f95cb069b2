// Package scoring holds the pure points formula for the daily quiz.
//
// Scoring uses a tiered speed bonus: a correct answer earns 5 base points
// plus a bonus read off a 2-second tier table inside the 10-second bonus
// window (<2s earns 5, <4s earns 4, down to <10s earning 1). This table is
// the single source of truth; any user-facing "how scoring works" copy must
// describe the same tiers.
package scoring

import "time"

// Contract constants. Consumers depend on these exact values; do not change
// them without versioning the contract.
const (
	QuestionTimeLimit = 16 * time.Second
	BonusWindow       = 10 * time.Second

	QuestionTimeLimitMs = int64(QuestionTimeLimit / time.Millisecond)
	BonusWindowMs       = int64(BonusWindow / time.Millisecond)

	MaxQuestions       = 10
	ChoicesPerQuestion = 4
	CorrectPoints      = 5
	MaxBonusPoints     = 5

	// MaxPointsPerQuestion and MaxPointsPerQuiz follow from the above.
	MaxPointsPerQuestion = CorrectPoints + MaxBonusPoints
	MaxPointsPerQuiz     = MaxPointsPerQuestion * MaxQuestions
)

// bonusTierMs is the width of one bonus tier.
const bonusTierMs = int64(2000)

// Breakdown is the outcome of scoring one answered question.
type Breakdown struct {
	BasePoints  int   `json:"basePoints"`
	BonusPoints int   `json:"bonusPoints"`
	TotalPoints int   `json:"totalPoints"`
	ElapsedMs   int64 `json:"elapsedMs"` // clamped to [0, QuestionTimeLimitMs]
}

// Score maps one answer's (correctness, elapsed time, timeout flag) to
// points. Pure: no I/O, no clock reads; elapsed is clamped before use. A
// timeout always scores zero and charges the full time limit.
func Score(isCorrect bool, elapsedMs int64, isTimeout bool) Breakdown {
	if isTimeout {
		return Breakdown{ElapsedMs: QuestionTimeLimitMs}
	}

	if elapsedMs < 0 {
		elapsedMs = 0
	} else if elapsedMs > QuestionTimeLimitMs {
		elapsedMs = QuestionTimeLimitMs
	}

	if !isCorrect {
		return Breakdown{ElapsedMs: elapsedMs}
	}

	bonus := 0
	if elapsedMs < BonusWindowMs {
		bonus = MaxBonusPoints - int(elapsedMs/bonusTierMs)
	}
	return Breakdown{
		BasePoints:  CorrectPoints,
		BonusPoints: bonus,
		TotalPoints: CorrectPoints + bonus,
		ElapsedMs:   elapsedMs,
	}
}
