package model

import (
	"encoding/json"
	"time"
)

// QuizResult は1回のクイズ提出結果を表す。作成後は変更しない。
type QuizResult struct {
	ID              int64
	UserID          int64
	QuizType        string
	Params          json.RawMessage // 出題条件（タクソンや地域のフィルタ等）
	Score           float64         // 0.0〜1.0
	QuestionCount   *int
	DurationSeconds *int
	CreatedAt       time.Time
}
