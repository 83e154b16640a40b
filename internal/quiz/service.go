// Package quiz はクイズ結果の保存と一覧取得のビジネスロジックを提供する。
package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/taxonia/internal/apperror"
	"github.com/hitoshi/taxonia/internal/model"
	"github.com/hitoshi/taxonia/internal/repository"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100

	// MaxQuizTypeLength はquiz_typeの最大文字数。
	MaxQuizTypeLength = 64
)

// SubmitInput はクイズ結果の登録内容。
type SubmitInput struct {
	QuizType        string
	Params          json.RawMessage
	Score           float64
	QuestionCount   *int
	DurationSeconds *int
}

// SavedCounter は保存成功を記録する。nilの場合は記録しない。
type SavedCounter interface {
	IncQuizResultsSaved()
}

// Service はクイズ結果に関するビジネスロジックを提供する。
type Service struct {
	repo    repository.QuizRepository
	counter SavedCounter
}

// NewService はServiceを生成する。
func NewService(repo repository.QuizRepository, counter SavedCounter) *Service {
	return &Service{repo: repo, counter: counter}
}

// Submit は入力を検証してクイズ結果を保存し、保存した結果を返す。
// scoreは[0,1]に丸める。NaNと無限大は拒否する。
func (s *Service) Submit(ctx context.Context, userID int64, in SubmitInput) (*model.QuizResult, error) {
	quizType := strings.TrimSpace(in.QuizType)
	if quizType == "" {
		return nil, apperror.BadRequest("quiz_type is required")
	}
	if utf8.RuneCountInString(quizType) > MaxQuizTypeLength {
		return nil, apperror.BadRequest(fmt.Sprintf("quiz_type must be at most %d characters", MaxQuizTypeLength))
	}
	if math.IsNaN(in.Score) || math.IsInf(in.Score, 0) {
		return nil, apperror.BadRequest("score must be a finite number")
	}
	if err := checkCount("question_count", in.QuestionCount); err != nil {
		return nil, err
	}
	if err := checkCount("duration_seconds", in.DurationSeconds); err != nil {
		return nil, err
	}

	params, err := normalizeParams(in.Params)
	if err != nil {
		return nil, err
	}

	result := &model.QuizResult{
		UserID:          userID,
		QuizType:        quizType,
		Params:          params,
		Score:           ClampScore(in.Score),
		QuestionCount:   in.QuestionCount,
		DurationSeconds: in.DurationSeconds,
	}
	if err := s.repo.Insert(ctx, result); err != nil {
		return nil, err
	}

	if s.counter != nil {
		s.counter.IncQuizResultsSaved()
	}
	return result, nil
}

// List は指定ユーザーのクイズ結果を新しい順に返す。
// limitは[1,100]、offsetは0以上に丸める。
func (s *Service) List(ctx context.Context, userID int64, limit, offset int) ([]model.QuizResult, error) {
	return s.repo.ListByUser(ctx, userID, ClampLimit(limit), ClampOffset(offset))
}

// checkCount は任意の整数項目がINTEGER列に収まる非負値であることを検証する。
func checkCount(field string, v *int) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return apperror.BadRequest(field + " must not be negative")
	}
	if *v > math.MaxInt32 {
		return apperror.BadRequest(fmt.Sprintf("%s must be at most %d", field, math.MaxInt32))
	}
	return nil
}

// ClampScore はscoreを[0,1]に丸める。
func ClampScore(score float64) float64 {
	return math.Min(1, math.Max(0, score))
}

// ClampLimit はlimitを[1,MaxLimit]に丸める。
func ClampLimit(limit int) int {
	return min(MaxLimit, max(1, limit))
}

// ClampOffset は負のoffsetを0にする。
func ClampOffset(offset int) int {
	return max(0, offset)
}

// normalizeParams は空またはnullのparamsを{}にし、それ以外は妥当なJSONであることを確認する。
func normalizeParams(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(trimmed) {
		return nil, apperror.BadRequest("params must be valid JSON")
	}
	return json.RawMessage(trimmed), nil
}
