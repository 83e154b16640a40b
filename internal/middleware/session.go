package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/taxonia/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "taxonia_session"

// UserResolver はセッションIDから現在のユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type UserResolver interface {
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// ユーザーを解決するミドルウェアを返す。
// 解決したユーザーとユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401、ストアやDBの障害には500を返す。
func NewSessionMiddleware(resolver UserResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			user, err := resolver.CurrentUser(r.Context(), sessionID)
			if err != nil {
				WriteAppError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}
