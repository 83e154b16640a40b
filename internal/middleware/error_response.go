package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// WriteAppError はapperrorの分類をHTTPステータスに変換して書き込む。
//
//	BadRequest   → 400
//	Unauthorized → 401
//	NotFound     → 404
//	それ以外     → 500（原因はログのみに記録）
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch apperror.KindOf(err) {
	case apperror.KindBadRequest:
		WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError(apperror.MessageOf(err)))
	case apperror.KindUnauthorized:
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
	case apperror.KindNotFound:
		WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError(apperror.MessageOf(err)))
	default:
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("kind", string(apperror.KindOf(err))),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
		WriteInternalServerError(w)
	}
}
