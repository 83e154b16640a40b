package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
)

// PostgresQuizRepo はPostgreSQLを使用したクイズ結果リポジトリ。
type PostgresQuizRepo struct {
	db *sql.DB
}

// NewPostgresQuizRepo はPostgresQuizRepoを生成する。
func NewPostgresQuizRepo(db *sql.DB) *PostgresQuizRepo {
	return &PostgresQuizRepo{db: db}
}

// Insert はクイズ結果を保存する。
// paramsはjsonbとして保存するため文字列で渡す（[]byteはbyteaとして送られる）。
func (r *PostgresQuizRepo) Insert(ctx context.Context, result *model.QuizResult) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO quiz_results (
			user_id, quiz_type, params, score, question_count, duration_seconds
		 ) VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		 RETURNING id, created_at`,
		result.UserID, result.QuizType, string(result.Params), result.Score,
		nullInt(result.QuestionCount), nullInt(result.DurationSeconds),
	).Scan(&result.ID, &result.CreatedAt)
	if err != nil {
		return apperror.Persistence("quiz_results.insert", err)
	}
	return nil
}

// ListByUser は指定ユーザーのクイズ結果を新しい順に返す。
func (r *PostgresQuizRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]model.QuizResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, quiz_type, params, score, question_count, duration_seconds, created_at
		 FROM quiz_results
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, apperror.Persistence("quiz_results.list", err)
	}
	defer rows.Close()

	results := make([]model.QuizResult, 0)
	for rows.Next() {
		var (
			qr       model.QuizResult
			params   []byte
			count    sql.NullInt32
			duration sql.NullInt32
		)
		if err := rows.Scan(&qr.ID, &qr.UserID, &qr.QuizType, &params, &qr.Score, &count, &duration, &qr.CreatedAt); err != nil {
			return nil, apperror.Persistence("quiz_results.list", fmt.Errorf("failed to scan row: %w", err))
		}
		qr.Params = params
		if count.Valid {
			v := int(count.Int32)
			qr.QuestionCount = &v
		}
		if duration.Valid {
			v := int(duration.Int32)
			qr.DurationSeconds = &v
		}
		results = append(results, qr)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("quiz_results.list", err)
	}

	return results, nil
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

// compile-time interface check
var _ QuizRepository = (*PostgresQuizRepo)(nil)
