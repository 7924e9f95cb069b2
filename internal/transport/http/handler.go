package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"daily-trivia-service/internal/app"
	"daily-trivia-service/internal/domain"
)

// playerHeader carries the opaque player id the identity service resolved
// upstream. The core treats it as an opaque string.
const playerHeader = "X-Player-ID"

// Handler exposes the attempt lifecycle and leaderboard as thin JSON
// endpoints. It holds no state of its own; every decision is the services'.
type Handler struct {
	attempts    *app.AttemptService
	leaderboard *app.LeaderboardService
}

func NewHandler(attempts *app.AttemptService, leaderboard *app.LeaderboardService) *Handler {
	return &Handler{attempts: attempts, leaderboard: leaderboard}
}

// Register wires the endpoints onto a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/attempts/start", h.handleStart)
	mux.HandleFunc("/attempts/submit", h.handleSubmit)
	mux.HandleFunc("/attempts/finalize", h.handleFinalize)
	mux.HandleFunc("/leaderboard", h.handleLeaderboard)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID := r.Header.Get(playerHeader)
	if playerID == "" {
		http.Error(w, "missing "+playerHeader+" header", http.StatusUnauthorized)
		return
	}

	quiz, err := h.attempts.CurrentQuiz(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.attempts.StartOrResume(r.Context(), playerID, quiz.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type submitRequest struct {
	AttemptID        string `json:"attemptId"`
	QuestionID       string `json:"questionId"`
	SelectedAnswerID string `json:"selectedAnswerId"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID := r.Header.Get(playerHeader)
	if playerID == "" {
		http.Error(w, "missing "+playerHeader+" header", http.StatusUnauthorized)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.attempts.SubmitAnswer(r.Context(), playerID, req.AttemptID, req.QuestionID, req.SelectedAnswerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type finalizeRequest struct {
	AttemptID string `json:"attemptId"`
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	playerID := r.Header.Get(playerHeader)
	if playerID == "" {
		http.Error(w, "missing "+playerHeader+" header", http.StatusUnauthorized)
		return
	}
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	score, err := h.attempts.Finalize(r.Context(), playerID, req.AttemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, score)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query, err := rankQueryFromRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.leaderboard.Rank(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func rankQueryFromRequest(r *http.Request) (app.RankQuery, error) {
	query := app.RankQuery{
		Window:    app.Window(r.URL.Query().Get("window")),
		ScoreType: app.ScoreType(r.URL.Query().Get("scoreType")),
		Mode:      app.Mode(r.URL.Query().Get("mode")),
		ViewerID:  r.Header.Get(playerHeader),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return app.RankQuery{}, domain.ErrInvalidInput
		}
		query.Limit = limit
	}
	return query, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// writeError maps domain errors onto the error taxonomy: not-found 404,
// state conflicts 409, validation 422, anything else a retryable 503.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var incomplete *domain.IncompleteAttemptError
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrNoActiveQuiz):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAttemptCompleted),
		errors.Is(err, domain.ErrQuestionNotCurrent),
		errors.Is(err, domain.ErrNoScoreInWindow):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &incomplete):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "attempt incomplete", Detail: incomplete.Error()})
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	default:
		log.Printf("storage error: %v", err)
		h.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service temporarily unavailable"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
