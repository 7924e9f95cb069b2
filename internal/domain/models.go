package domain

import "time"

// AttemptState labels where an attempt sits in its lifecycle.
type AttemptState string

const (
	StateInProgress      AttemptState = "IN_PROGRESS"
	StateReadyToFinalize AttemptState = "READY_TO_FINALIZE"
	StateFinalized       AttemptState = "FINALIZED"
)

// FinalizationIndex is the current_index value meaning "all questions
// answered, awaiting finalization".
const FinalizationIndex = 11

// Attempt is one player's pass through one day's quiz. A single row exists
// per (player, quiz); that uniqueness is the concurrency anchor for start.
type Attempt struct {
	ID                string     `json:"attemptId"`
	PlayerID          string     `json:"playerId"`
	QuizID            string     `json:"quizId"`
	CurrentIndex      int        `json:"currentIndex"` // 1..11
	QuestionStartedAt *time.Time `json:"currentQuestionStartedAt,omitempty"`
	QuestionExpiresAt *time.Time `json:"currentQuestionExpiresAt,omitempty"`
	TotalScore        int        `json:"totalScore"`
	TotalTimeMs       int64      `json:"totalTimeMs"`
	FinalizedAt       *time.Time `json:"finalizedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// State derives the lifecycle state from the persisted fields.
func (a Attempt) State() AttemptState {
	switch {
	case a.FinalizedAt != nil:
		return StateFinalized
	case a.CurrentIndex >= FinalizationIndex:
		return StateReadyToFinalize
	default:
		return StateInProgress
	}
}

// AnswerKind distinguishes player-selected answers from server-recorded timeouts.
type AnswerKind string

const (
	AnswerSelected AnswerKind = "selected"
	AnswerTimeout  AnswerKind = "timeout"
)

// AttemptAnswer is the immutable record of one question's outcome within an
// attempt. One row per (attempt, question); never updated after insert.
type AttemptAnswer struct {
	AttemptID        string     `json:"attemptId"`
	QuestionID       string     `json:"questionId"`
	QuestionIndex    int        `json:"questionIndex"` // 1..10
	Kind             AnswerKind `json:"answerKind"`
	SelectedOptionID string     `json:"selectedAnswerId,omitempty"` // empty on timeout
	IsCorrect        bool       `json:"isCorrect"`
	TimeMs           int64      `json:"timeMs"`
	BasePoints       int        `json:"basePoints"`
	BonusPoints      int        `json:"bonusPoints"`
	AnsweredAt       time.Time  `json:"answeredAt"`
}

// TotalPoints is the points this answer contributed to the attempt.
func (a AttemptAnswer) TotalPoints() int {
	return a.BasePoints + a.BonusPoints
}

// DailyScore is the finalized result row the leaderboard reads. Written
// exactly once per (quiz, player) at finalization.
type DailyScore struct {
	QuizID       string    `json:"quizId"`
	PlayerID     string    `json:"playerId"`
	Score        int       `json:"score"`
	TotalTimeMs  int64     `json:"totalTimeMs"`
	CorrectCount int       `json:"correctCount"`
	CompletedAt  time.Time `json:"completedAt"`
}

// QuizInfo identifies the currently released quiz.
type QuizInfo struct {
	ID        string    `json:"quizId"`
	ReleaseAt time.Time `json:"releaseAt"`
}

// Option is an answer choice as shown to players; it never carries the
// correct flag.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a quiz question as presented to players.
type Question struct {
	ID      string   `json:"id"`
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []Option `json:"options"`
}

// QuizOption is the authoring-side form of an answer choice. The Correct
// flag must stay inside the trusted execution context.
type QuizOption struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// QuizQuestion is the authoring-side form of a question.
type QuizQuestion struct {
	ID      string       `json:"id"`
	Prompt  string       `json:"prompt"`
	Options []QuizOption `json:"options"`
}

// Quiz is the full published quiz document as stored server-side: exactly
// ten ordered questions, four options each, one marked correct. Immutable
// once published.
type Quiz struct {
	ID        string         `json:"id"`
	ReleaseAt time.Time      `json:"releaseAt"`
	Questions []QuizQuestion `json:"questions"`
}

// QuestionAt returns the player-facing view of the question at the given
// 1-based index.
func (q Quiz) QuestionAt(index int) (Question, bool) {
	if index < 1 || index > len(q.Questions) {
		return Question{}, false
	}
	src := q.Questions[index-1]
	options := make([]Option, 0, len(src.Options))
	for _, opt := range src.Options {
		options = append(options, Option{ID: opt.ID, Text: opt.Text})
	}
	return Question{ID: src.ID, Index: index, Prompt: src.Prompt, Options: options}, true
}

// CorrectOptionID returns the correct option for a question id, or false if
// the question is not part of the quiz.
func (q Quiz) CorrectOptionID(questionID string) (string, bool) {
	for _, question := range q.Questions {
		if question.ID != questionID {
			continue
		}
		for _, opt := range question.Options {
			if opt.Correct {
				return opt.ID, true
			}
		}
		return "", false
	}
	return "", false
}
