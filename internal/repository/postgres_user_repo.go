package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// errIdentityRaced は並行ログインが先に同じidentityを作成したことを表す。
var errIdentityRaced = errors.New("identity created concurrently")

// UpsertIdentity はログインしたIdPユーザーに対応するローカルユーザーを作成または更新する。
//
// 既存のidentityはSELECT ... FOR UPDATEで行ロックしてからトークンと最終利用日時を更新する。
// 存在しない場合はユーザー（メールは未設定）とidentityを新規作成する。
// 同一identityへの初回ログインが並行した場合、後発側はON CONFLICTで衝突を検知して
// ロールバックし、先発側が作成したidentityの更新としてやり直す。
// 途中で失敗した場合はロールバックされ、何も書き込まれない。
func (r *PostgresUserRepo) UpsertIdentity(ctx context.Context, provider string, profile *model.ProviderProfile, displayName string, tokens *model.TokenSet) (int64, error) {
	userID, err := r.upsertIdentityTx(ctx, provider, profile, displayName, tokens)
	if errors.Is(err, errIdentityRaced) {
		userID, err = r.upsertIdentityTx(ctx, provider, profile, displayName, tokens)
	}
	if errors.Is(err, errIdentityRaced) {
		return 0, apperror.Persistence("users.upsert", err)
	}
	return userID, err
}

func (r *PostgresUserRepo) upsertIdentityTx(ctx context.Context, provider string, profile *model.ProviderProfile, displayName string, tokens *model.TokenSet) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	refreshToken := nullString(tokens.RefreshToken)
	expiresAt := nullTime(tokens)

	var userID int64
	err = tx.QueryRowContext(ctx,
		`SELECT user_id FROM auth_identities
		 WHERE provider = CAST($1 AS auth_provider) AND provider_user_id = $2
		 FOR UPDATE`,
		provider, profile.ProviderUserID,
	).Scan(&userID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx,
			`INSERT INTO users (display_name, primary_email, last_login_at)
			 VALUES ($1, NULL, now())
			 RETURNING id`,
			displayName,
		).Scan(&userID)
		if err != nil {
			return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to insert user: %w", err))
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO auth_identities (
				user_id, provider, provider_user_id, access_token, refresh_token, token_expires_at, last_used_at
			 ) VALUES ($1, CAST($2 AS auth_provider), $3, $4, $5, $6, now())
			 ON CONFLICT ON CONSTRAINT auth_identities_provider_user_unique DO NOTHING`,
			userID, provider, profile.ProviderUserID, tokens.AccessToken, refreshToken, expiresAt,
		)
		if err != nil {
			return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to insert identity: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to insert identity: %w", err))
		}
		if n == 0 {
			// 作成したユーザーはロールバックで破棄される
			return 0, errIdentityRaced
		}

	case err != nil:
		return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to find identity: %w", err))

	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE auth_identities
			 SET access_token = $1, refresh_token = $2, token_expires_at = $3, last_used_at = now()
			 WHERE provider = CAST($4 AS auth_provider) AND provider_user_id = $5`,
			tokens.AccessToken, refreshToken, expiresAt, provider, profile.ProviderUserID,
		)
		if err != nil {
			return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to update identity: %w", err))
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users
			 SET display_name = $1, updated_at = now(), last_login_at = now()
			 WHERE id = $2`,
			displayName, userID,
		)
		if err != nil {
			return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to update user: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperror.Persistence("users.upsert", fmt.Errorf("failed to commit transaction: %w", err))
	}

	return userID, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	var (
		user      model.User
		email     sql.NullString
		lastLogin sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, primary_email, created_at, updated_at, last_login_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.DisplayName, &email, &user.CreatedAt, &user.UpdatedAt, &lastLogin)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Persistence("users.find", err)
	}

	if email.Valid {
		user.PrimaryEmail = &email.String
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return &user, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(tokens *model.TokenSet) sql.NullTime {
	if tokens.ExpiresAt == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *tokens.ExpiresAt, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
