// Package apperror はサブシステム横断で使う型付きエラー分類を提供する。
// HTTPステータスへの変換はhandler/middleware層でのみ行う。
package apperror

import (
	"errors"
	"fmt"
)

// Kind はエラーの分類を表す。
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindPersistence   Kind = "persistence"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindBadRequest    Kind = "bad_request"
)

// errors.Isで分類を判定するための番兵エラー。
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransport     = errors.New("transport error")
	ErrPersistence   = errors.New("persistence error")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrBadRequest    = errors.New("bad request")
)

var sentinels = map[Kind]error{
	KindConfiguration: ErrConfiguration,
	KindTransport:     ErrTransport,
	KindPersistence:   ErrPersistence,
	KindNotFound:      ErrNotFound,
	KindUnauthorized:  ErrUnauthorized,
	KindBadRequest:    ErrBadRequest,
}

// Error は分類、操作名、利用者向けメッセージ、原因エラーを保持する。
type Error struct {
	Kind    Kind
	Op      string // 失敗した操作（例: "inat.exchange_code"）
	Message string // クライアントに返してよいメッセージ
	Err     error  // 原因エラー。ログにのみ出力する
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// Is は分類に対応する番兵エラーと一致するかを判定する。
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Configuration は設定エラーを生成する。
func Configuration(err error) *Error {
	return &Error{Kind: KindConfiguration, Op: "config.load", Err: err}
}

// Transport は外部サービス（IdP、Redis）との通信エラーを生成する。
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// Persistence はデータベース操作のエラーを生成する。
func Persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// NotFound はリソース未検出エラーを生成する。
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Unauthorized は未認証エラーを生成する。
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// BadRequest はクライアント起因のエラーを生成する。
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// KindOf はエラーチェーンから分類を取り出す。
// 分類を持たないエラーは空文字列を返す。
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// MessageOf はクライアントに返してよいメッセージを取り出す。
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ""
}
