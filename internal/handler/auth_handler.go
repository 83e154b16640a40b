package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/metrics"
	"github.com/hitoshi/taxonia/internal/middleware"
	"github.com/hitoshi/taxonia/internal/model"
	"github.com/hitoshi/taxonia/internal/session"
)

// AuthService は認証ハンドラーが必要とするサービスインターフェース。
type AuthService interface {
	LoginURL(ctx context.Context) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*model.Session, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	AppRedirectURI string // ログイン完了後のリダイレクト先
	CookieSecure   bool   // 本番環境ではtrue
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthService
	recorder metrics.Recorder
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthService, recorder metrics.Recorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		recorder: recorder,
		config:   config,
	}
}

type loginURLResponse struct {
	URL string `json:"url"`
}

type meResponse struct {
	ID           int64   `json:"id"`
	DisplayName  string  `json:"display_name"`
	PrimaryEmail *string `json:"primary_email"`
}

// LoginURL はiNaturalistの認可URLを返す。
// GET /auth/login-url
func (h *AuthHandler) LoginURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.LoginURL(r.Context())
	if err != nil {
		middleware.WriteAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, loginURLResponse{URL: url})
}

// Callback はOAuthコールバックを処理し、セッションCookieを設定してフロントエンドへリダイレクトする。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if reason := q.Get("error"); reason != "" {
		slog.WarnContext(r.Context(), "login rejected by provider", slog.String("reason", reason))
		h.recordLogin(metrics.LoginFailure)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewLoginRejectedError(reason))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.recordLogin(metrics.LoginFailure)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingCodeError())
		return
	}

	sess, err := h.service.HandleCallback(r.Context(), code, q.Get("state"))
	if err != nil {
		if errors.Is(err, apperror.ErrBadRequest) {
			slog.WarnContext(r.Context(), "oauth state rejected")
			h.recordLogin(metrics.LoginInvalidState)
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidStateError())
			return
		}
		h.recordLogin(metrics.LoginFailure)
		middleware.WriteAppError(w, r, err)
		return
	}

	h.recordLogin(metrics.LoginSuccess)
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(session.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.config.AppRedirectURI, http.StatusFound)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, r, http.StatusOK, meResponse{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		PrimaryEmail: user.PrimaryEmail,
	})
}

func (h *AuthHandler) recordLogin(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordLogin(outcome)
	}
}
