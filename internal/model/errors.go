package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidState  = "INVALID_STATE"
	ErrCodeMissingCode   = "MISSING_CODE"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMIT_EXCEEDED"
	ErrCodeLoginRejected = "LOGIN_REJECTED"
	ErrCodeForbidden     = "FORBIDDEN_ORIGIN"
)

// NewInvalidStateError はOAuth stateが不正または期限切れの場合のエラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "invalid or expired state",
		Category: "auth",
		Action:   "Start the login again from the login button.",
	}
}

// NewMissingCodeError は認可コードが付与されていない場合のエラーを生成する。
func NewMissingCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCode,
		Message:  "missing authorization code",
		Category: "auth",
		Action:   "Start the login again from the login button.",
	}
}

// NewLoginRejectedError はIdP側でログインが拒否された場合のエラーを生成する。
func NewLoginRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLoginRejected,
		Message:  fmt.Sprintf("login was not completed: %s", reason),
		Category: "auth",
		Action:   "Authorize Taxonia on iNaturalist to sign in.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "authentication required",
		Category: "auth",
		Action:   "Sign in with iNaturalist.",
	}
}

// NewInvalidInputError は入力値が不正な場合のエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  reason,
		Category: "validation",
		Action:   "Check the request parameters and try again.",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  reason,
		Category: "validation",
		Action:   "Check the identifier and try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "too many requests",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewForbiddenOriginError は許可されていないOriginからの状態変更リクエストのエラーを生成する。
func NewForbiddenOriginError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "origin not allowed",
		Category: "auth",
		Action:   "Use the Taxonia web application.",
	}
}

// NewInternalError は内部エラーを生成する。詳細は含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "internal server error",
		Category: "system",
		Action:   "Please try again later.",
	}
}
