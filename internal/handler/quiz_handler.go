package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/taxonia/internal/middleware"
	"github.com/hitoshi/taxonia/internal/model"
	"github.com/hitoshi/taxonia/internal/quiz"
)

// maxQuizBodyBytes はクイズ結果リクエストボディの上限。
const maxQuizBodyBytes = 64 << 10

// QuizService はクイズハンドラーが必要とするサービスインターフェース。
type QuizService interface {
	Submit(ctx context.Context, userID int64, in quiz.SubmitInput) (*model.QuizResult, error)
	List(ctx context.Context, userID int64, limit, offset int) ([]model.QuizResult, error)
}

// QuizHandler はクイズ結果のHTTPハンドラー。
type QuizHandler struct {
	service QuizService
}

// NewQuizHandler はQuizHandlerを生成する。
func NewQuizHandler(service QuizService) *QuizHandler {
	return &QuizHandler{service: service}
}

type submitQuizRequest struct {
	QuizType        string          `json:"quiz_type"`
	Params          json.RawMessage `json:"params"`
	Score           *float64        `json:"score"`
	QuestionCount   *int            `json:"question_count"`
	DurationSeconds *int            `json:"duration_seconds"`
}

type submitQuizResponse struct {
	ID int64 `json:"id"`
}

type quizResultResponse struct {
	ID              int64           `json:"id"`
	QuizType        string          `json:"quiz_type"`
	Params          json.RawMessage `json:"params"`
	Score           float64         `json:"score"`
	QuestionCount   *int            `json:"question_count"`
	DurationSeconds *int            `json:"duration_seconds"`
	CreatedAt       time.Time       `json:"created_at"`
}

type listQuizResponse struct {
	Items []quizResultResponse `json:"items"`
}

// Submit はクイズ結果を保存する。
// POST /quiz/results
func (h *QuizHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req submitQuizRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxQuizBodyBytes))
	if err := dec.Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("request body must be a JSON object"))
		return
	}
	if req.Score == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("score is required"))
		return
	}

	result, err := h.service.Submit(r.Context(), userID, quiz.SubmitInput{
		QuizType:        req.QuizType,
		Params:          req.Params,
		Score:           *req.Score,
		QuestionCount:   req.QuestionCount,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		middleware.WriteAppError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, submitQuizResponse{ID: result.ID})
}

// List はログインユーザーのクイズ結果を新しい順に返す。
// GET /quiz/results?limit=20&offset=0
func (h *QuizHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	limit, ok := intQuery(r, "limit", quiz.DefaultLimit)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("limit must be an integer"))
		return
	}
	offset, ok := intQuery(r, "offset", 0)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("offset must be an integer"))
		return
	}

	results, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		middleware.WriteAppError(w, r, err)
		return
	}

	items := make([]quizResultResponse, 0, len(results))
	for _, res := range results {
		items = append(items, quizResultResponse{
			ID:              res.ID,
			QuizType:        res.QuizType,
			Params:          res.Params,
			Score:           res.Score,
			QuestionCount:   res.QuestionCount,
			DurationSeconds: res.DurationSeconds,
			CreatedAt:       res.CreatedAt,
		})
	}
	writeJSON(w, r, http.StatusOK, listQuizResponse{Items: items})
}

// intQuery はクエリパラメータを整数として読む。未指定の場合はdefを返す。
func intQuery(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
