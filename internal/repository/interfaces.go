// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/taxonia/internal/model"
)

// UserRepository はユーザーと外部IdP紐付け情報の永続化インターフェース。
type UserRepository interface {
	// UpsertIdentity はprovider/profileに対応するユーザーを作成または更新し、ユーザーIDを返す。
	// ユーザーとidentityは同一トランザクションで書き込む。
	UpsertIdentity(ctx context.Context, provider string, profile *model.ProviderProfile, displayName string, tokens *model.TokenSet) (int64, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// QuizRepository はクイズ結果の永続化インターフェース。
type QuizRepository interface {
	// Insert はクイズ結果を保存し、採番されたIDとcreated_atをresultに設定する。
	Insert(ctx context.Context, result *model.QuizResult) error

	// ListByUser は指定ユーザーのクイズ結果を新しい順に返す。
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.QuizResult, error)
}
