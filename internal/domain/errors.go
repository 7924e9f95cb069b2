package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAttemptNotFound covers both a missing attempt and an ownership
	// mismatch; callers never learn which.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAnswerNotFound indicates no answer row exists for (attempt, question).
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrQuestionNotFound indicates a question id or index is invalid for the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNoActiveQuiz is returned when no quiz is currently released.
	ErrNoActiveQuiz = errors.New("no quiz currently released")
	// ErrAttemptCompleted rejects mutations of a finalized attempt.
	ErrAttemptCompleted = errors.New("attempt already completed")
	// ErrQuestionNotCurrent rejects a submit for a question that is not the
	// attempt's current question.
	ErrQuestionNotCurrent = errors.New("question is not the attempt's current question")
	// ErrNoScoreInWindow is returned by around-me ranking when the viewer
	// has no finalized score inside the requested window.
	ErrNoScoreInWindow = errors.New("viewer has no score in this window")
	// ErrInvalidInput flags malformed, client-correctable input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateAttempt is the storage-level signal that another writer
	// already created the (player, quiz) attempt row. Treated as a benign
	// race: re-read and converge.
	ErrDuplicateAttempt = errors.New("attempt already exists for player and quiz")
	// ErrDuplicateAnswer is the storage-level signal that another writer
	// already recorded this (attempt, question) answer.
	ErrDuplicateAnswer = errors.New("answer already recorded for question")
	// ErrStaleAttempt means the attempt advanced underneath a writer; the
	// caller should re-read and retry its decision.
	ErrStaleAttempt = errors.New("attempt progressed concurrently")
)

// IncompleteAttemptError reports a finalize call against an attempt that is
// missing answers, naming the unanswered question indexes.
type IncompleteAttemptError struct {
	Missing []int
}

func (e *IncompleteAttemptError) Error() string {
	sorted := append([]int(nil), e.Missing...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for _, idx := range sorted {
		parts = append(parts, fmt.Sprintf("%d", idx))
	}
	return "attempt incomplete: missing answers for questions " + strings.Join(parts, ", ")
}
