package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout は依存先ごとのヘルスチェックの上限時間。
const healthCheckTimeout = 2 * time.Second

// PingFunc は依存先の疎通を確認する。*sql.DB.PingContextやsession.Store.Pingを渡す。
type PingFunc func(ctx context.Context) error

// HealthHandler はデータベースとRedisの疎通状況を返すハンドラー。
type HealthHandler struct {
	db    PingFunc
	redis PingFunc
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db, redis PingFunc) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

type healthResponse struct {
	DBOK     bool `json:"db_ok"`
	RedisOK  bool `json:"redis_ok"`
	ServerOK bool `json:"server_ok"`
}

// Check は各依存先を並行して確認し、結果を常に200で返す。
// GET /health_check
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	var resp healthResponse
	resp.ServerOK = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		resp.DBOK = ping(r.Context(), "db", h.db)
	}()
	go func() {
		defer wg.Done()
		resp.RedisOK = ping(r.Context(), "redis", h.redis)
	}()
	wg.Wait()

	writeJSON(w, r, http.StatusOK, resp)
}

func ping(ctx context.Context, name string, fn PingFunc) bool {
	if fn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		slog.WarnContext(ctx, "health check failed",
			slog.String("dependency", name),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
