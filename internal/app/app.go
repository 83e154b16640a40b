// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/taxonia/internal/auth"
	"github.com/hitoshi/taxonia/internal/config"
	"github.com/hitoshi/taxonia/internal/database"
	"github.com/hitoshi/taxonia/internal/handler"
	"github.com/hitoshi/taxonia/internal/inat"
	"github.com/hitoshi/taxonia/internal/kvstore"
	"github.com/hitoshi/taxonia/internal/logger"
	"github.com/hitoshi/taxonia/internal/metrics"
	"github.com/hitoshi/taxonia/internal/middleware"
	"github.com/hitoshi/taxonia/internal/quiz"
	"github.com/hitoshi/taxonia/internal/repository"
	"github.com/hitoshi/taxonia/internal/security"
	"github.com/hitoshi/taxonia/internal/session"
)

const (
	defaultHealthcheckAddr = "127.0.0.1:3000"
	shutdownTimeout        = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 開発環境向けの.env（存在しなければ何もしない）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckURL(os.Getenv("BIND_ADDR")))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("bind_addr", cfg.BindAddr),
		slog.String("base_url", cfg.BaseURL),
		slog.String("env", string(cfg.Environment)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisへの接続を確認し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established", slog.Int("max_conns", cfg.DBMaxConns))

	// 2. Redis接続
	rdb, err := kvstore.Open(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to open redis: %w", err)
	}
	defer rdb.Close()

	if err := kvstore.Ping(ctx, rdb); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connection established")

	// 3. ルーターの構築
	router, cleanup := NewHandler(cfg, db, rdb, prometheus.NewRegistry())
	defer cleanup()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// NewHandler はDBとRedisのクライアントから全依存関係を組み立て、HTTPハンドラーを返す。
// 返り値のcleanupはレートリミッターのバックグラウンド処理を停止する。
func NewHandler(cfg *config.Config, db *sql.DB, rdb redis.Cmdable, reg *prometheus.Registry) (http.Handler, func()) {
	// 1. リポジトリとセッションストア
	userRepo := repository.NewPostgresUserRepo(db)
	quizRepo := repository.NewPostgresQuizRepo(db)
	sessions := session.NewStore(rdb)

	// 2. 外部IdPクライアント
	provider := inat.NewClient(inat.ClientConfig{
		ClientID:     cfg.InatClientID,
		ClientSecret: cfg.InatClientSecret,
		RedirectURI:  cfg.InatRedirectURI,
		BaseURL:      cfg.InatBaseURL,
		APIBaseURL:   cfg.InatAPIBaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.InatHTTPTimeout},
	})

	// 3. ドメインサービス
	collector := metrics.NewCollector(reg)
	authService := auth.NewService(provider, sessions, userRepo, security.NewProfileSanitizer())
	quizService := quiz.NewService(quizRepo, collector)

	// 4. レートリミッター（req/min）
	authLimiter := middleware.NewRateLimiter(middleware.PerMinute("auth", cfg.RateLimitAuth))
	generalLimiter := middleware.NewRateLimiter(middleware.PerMinute("general", cfg.RateLimitGeneral))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		UserResolver:       authService,
		AllowedOrigins:     cfg.AllowedOrigins,
		StrictTransport:    cfg.IsProduction(),
		AuthRateLimiter:    authLimiter,
		GeneralRateLimiter: generalLimiter,
		Recorder:           collector,
		MetricsHandler:     metrics.Handler(reg),
		AuthService:        authService,
		AuthConfig: handler.AuthHandlerConfig{
			AppRedirectURI: cfg.AppRedirectURI,
			CookieSecure:   cfg.IsProduction(),
		},
		QuizService: quizService,
		DBPing:      db.PingContext,
		RedisPing:   sessions.Ping,
	})

	cleanup := func() {
		authLimiter.Stop()
		generalLimiter.Stop()
	}
	return router, cleanup
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health_check エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckURL はBIND_ADDRからローカルのヘルスチェックURLを組み立てる。
// 0.0.0.0や空のホストはループバックに置き換える。
func healthcheckURL(bindAddr string) string {
	if bindAddr == "" {
		bindAddr = defaultHealthcheckAddr
	}
	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		host, port = "127.0.0.1", "3000"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/health_check"
}

// maskDatabaseURL はデータベースURLのパスワードとクエリをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
