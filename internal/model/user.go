// Package model はドメインモデルを定義する。
package model

import "time"

// ProviderInat はiNaturalistを表すプロバイダー識別子。
// DBのauth_provider列挙型の値と一致させる。
const ProviderInat = "inat"

// User はサービス利用ユーザーを表す。
type User struct {
	ID           int64
	DisplayName  string
	PrimaryEmail *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// AuthIdentity は外部IdPとの紐付け情報を表す。
// (Provider, ProviderUserID) の組は一意。
type AuthIdentity struct {
	UserID         int64
	Provider       string
	ProviderUserID string
	AccessToken    string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	LastUsedAt     time.Time
}

// Session はユーザーのログインセッションを表す。
// KVストアに保存され、TTL経過で自動的に消える。
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
}

// TokenSet は認可コード交換で得たトークン群。
type TokenSet struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}

// ProviderProfile はIdPから取得したユーザープロフィール。
type ProviderProfile struct {
	ProviderUserID string
	Login          string
	Name           string // 未設定の場合は空文字列
	IconURL        string
	Email          string
}
