package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taxonia/internal/metrics"
	"github.com/hitoshi/taxonia/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	UserResolver       middleware.UserResolver
	AllowedOrigins     []string
	StrictTransport    bool                    // 本番ではHSTSを付与する
	AuthRateLimiter    *middleware.RateLimiter // IP単位。/auth/login-url と /auth/callback に適用
	GeneralRateLimiter *middleware.RateLimiter // ユーザー単位。/quiz/* に適用

	// メトリクス
	Recorder       metrics.Recorder
	MetricsHandler http.Handler

	// 認証
	AuthService AuthService
	AuthConfig  AuthHandlerConfig

	// クイズ
	QuizService QuizService

	// ヘルスチェック
	DBPing    PingFunc
	RedisPing PingFunc
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS → OriginGuard
//
// /auth/login-url と /auth/callback にはIP単位のレート制限、
// /quiz/* にはSession → ユーザー単位のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Recorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Recorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.StrictTransport))
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))
	r.Use(middleware.NewOriginGuardMiddleware(deps.AllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService, deps.Recorder, deps.AuthConfig)
	quizHandler := NewQuizHandler(deps.QuizService)
	healthHandler := NewHealthHandler(deps.DBPing, deps.RedisPing)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteAppError(w, r, errNotFound)
	})

	// --- 認証不要のルート ---

	r.Get("/health_check", healthHandler.Check)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if deps.AuthRateLimiter != nil {
				r.Use(deps.AuthRateLimiter.Middleware(middleware.ClientIPKey))
			}
			r.Get("/login-url", authHandler.LoginURL)
			r.Get("/callback", authHandler.Callback)
		})

		r.With(middleware.NewSessionMiddleware(deps.UserResolver)).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Route("/quiz", func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.UserResolver))
		if deps.GeneralRateLimiter != nil {
			r.Use(deps.GeneralRateLimiter.Middleware(middleware.UserKey))
		}

		r.Post("/results", quizHandler.Submit)
		r.Get("/results", quizHandler.List)
	})

	return r
}
