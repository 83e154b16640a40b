// Package session はRedis上のセッションとOAuth stateを管理する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
)

const (
	sessionKeyPrefix    = "session:"
	oauthStateKeyPrefix = "oauth_state:"

	// SessionTTL はセッションの有効期間。延長はしない。
	SessionTTL = 7 * 24 * time.Hour
	// OAuthStateTTL はOAuth stateの有効期間。
	OAuthStateTTL = 10 * time.Minute

	// TokenLength はセッションIDとOAuth stateの文字数。
	TokenLength = 32

	oauthStateSentinel = "1"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// sessionPayload はRedisに保存するセッションのJSON表現。
type sessionPayload struct {
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store はRedisを使ったセッションストア。
// 複数リクエストから同時に使用してよい。
type Store struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb, now: time.Now}
}

// GenerateToken は暗号論的乱数から32文字の英数字トークンを生成する。
func GenerateToken() (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, TokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// CreateSession は新しいセッションを7日間の有効期限付きで保存し、保存したセッションを返す。
func (s *Store) CreateSession(ctx context.Context, userID int64) (*model.Session, error) {
	id, err := GenerateToken()
	if err != nil {
		return nil, apperror.Transport("session.create", err)
	}

	sess := &model.Session{ID: id, UserID: userID, CreatedAt: s.now().UTC()}
	payload, err := json.Marshal(sessionPayload{UserID: sess.UserID, CreatedAt: sess.CreatedAt})
	if err != nil {
		return nil, apperror.Transport("session.create", err)
	}

	if err := s.rdb.Set(ctx, sessionKeyPrefix+id, payload, SessionTTL).Err(); err != nil {
		return nil, apperror.Transport("session.create", err)
	}
	return sess, nil
}

// GetSession はセッションIDからセッションを取得する。
// キーが存在しない場合や内容が壊れている場合はnilを返す。
func (s *Store) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Transport("session.get", err)
	}

	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil
	}

	return &model.Session{ID: sessionID, UserID: p.UserID, CreatedAt: p.CreatedAt}, nil
}

// StoreOAuthState はOAuth stateを10分間の有効期限付きで保存する。
func (s *Store) StoreOAuthState(ctx context.Context, state string) error {
	if err := s.rdb.Set(ctx, oauthStateKeyPrefix+state, oauthStateSentinel, OAuthStateTTL).Err(); err != nil {
		return apperror.Transport("session.store_state", err)
	}
	return nil
}

// ConsumeOAuthState はOAuth stateを消費する。
// GETDELで取得と削除を1回の操作で行うため、同じstateでtrueを返すのは1回だけ。
func (s *Store) ConsumeOAuthState(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}

	err := s.rdb.GetDel(ctx, oauthStateKeyPrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperror.Transport("session.consume_state", err)
	}
	return true, nil
}

// Ping はRedisへの疎通を確認する。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return apperror.Transport("session.ping", err)
	}
	return nil
}
