// Package auth はiNaturalist OAuthによるログインフローと現在ユーザーの解決を提供する。
package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
	"github.com/hitoshi/taxonia/internal/repository"
	"github.com/hitoshi/taxonia/internal/session"
)

// IdentityProvider は外部IdPとのOAuthトークン交換とプロフィール取得のインターフェース。
type IdentityProvider interface {
	AuthorizationURL(state string) string
	ExchangeCodeForToken(ctx context.Context, code string) (*model.TokenSet, error)
	ExchangeAccessForAPIToken(ctx context.Context, accessToken string) (string, error)
	FetchCurrentUser(ctx context.Context, apiToken string) (*model.ProviderProfile, error)
}

// SessionStore はセッションとOAuth stateの保存先のインターフェース。
type SessionStore interface {
	CreateSession(ctx context.Context, userID int64) (*model.Session, error)
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	StoreOAuthState(ctx context.Context, state string) error
	ConsumeOAuthState(ctx context.Context, state string) (bool, error)
}

// DisplayNamer はプロフィールから表示名を決定する。
type DisplayNamer interface {
	DisplayName(name, login string) string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider IdentityProvider
	sessions SessionStore
	users    repository.UserRepository
	namer    DisplayNamer

	newState func() (string, error)
}

// NewService はServiceを生成する。
func NewService(provider IdentityProvider, sessions SessionStore, users repository.UserRepository, namer DisplayNamer) *Service {
	return &Service{
		provider: provider,
		sessions: sessions,
		users:    users,
		namer:    namer,
		newState: session.GenerateToken,
	}
}

// LoginURL はランダムなstateを発行して保存し、IdPの認可URLを返す。
func (s *Service) LoginURL(ctx context.Context) (string, error) {
	state, err := s.newState()
	if err != nil {
		return "", apperror.Transport("auth.login_url", err)
	}
	if err := s.sessions.StoreOAuthState(ctx, state); err != nil {
		return "", err
	}
	return s.provider.AuthorizationURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
//
// stateが未登録または消費済みの場合はBadRequestを返し、IdPへは問い合わせない。
// それ以降の失敗は全て内部エラーとして扱い、リトライしない。
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*model.Session, error) {
	ok, err := s.sessions.ConsumeOAuthState(ctx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.BadRequest("invalid or expired state")
	}

	tokens, err := s.provider.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return nil, err
	}

	apiToken, err := s.provider.ExchangeAccessForAPIToken(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	profile, err := s.provider.FetchCurrentUser(ctx, apiToken)
	if err != nil {
		return nil, err
	}

	displayName := s.namer.DisplayName(profile.Name, profile.Login)
	userID, err := s.users.UpsertIdentity(ctx, model.ProviderInat, profile, displayName, tokens)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.CreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user logged in",
		slog.Int64("user_id", userID),
		slog.String("provider", model.ProviderInat),
		slog.String("provider_user_id", profile.ProviderUserID),
	)

	return sess, nil
}

// CurrentUser はセッションIDから現在のユーザーを取得する。
// セッションが存在しない、または紐づくユーザーが存在しない場合はUnauthorizedを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, apperror.Unauthorized("no session")
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, apperror.Unauthorized("session not found or expired")
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		slog.WarnContext(ctx, "session references missing user", slog.Int64("user_id", sess.UserID))
		return nil, apperror.Unauthorized("user not found")
	}

	return user, nil
}
