package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/taxonia/internal/model"
)

// NewOriginGuardMiddleware は状態変更リクエストのOriginを検証するミドルウェアを返す。
// セッションCookieを使う状態変更メソッド（POST, PUT, PATCH, DELETE）は、
// Originヘッダーが付与されている場合に許可リストとの一致を必須とする。
// Originヘッダーのないリクエスト（ブラウザ以外のクライアント）は通過させる。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
func NewOriginGuardMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	allowed := newOriginSet(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin != "" && !allowed.contains(origin) {
				slog.WarnContext(r.Context(), "origin validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenOriginError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
