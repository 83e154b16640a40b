// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer はIdPから受け取ったプロフィール文字列を、
// 保存およびAPI応答に使える形に正規化する。
// bluemondayのStrictPolicyで全てのHTMLタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength はusers.display_nameの最大文字数。
const MaxDisplayNameLength = 255

// ProfileSanitizer はプロフィール文字列のサニタイズを行う。
// bluemondayのポリシーはスレッドセーフなので複数goroutineから使用してよい。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// DisplayName は表示名を決定する。
// nameがタグ除去後に空でなければそれを、空ならloginを使う。
// 結果は前後の空白を除去し、MaxDisplayNameLength文字に切り詰める。
func (s *ProfileSanitizer) DisplayName(name, login string) string {
	if n := s.clean(name); n != "" {
		return truncate(n, MaxDisplayNameLength)
	}
	return truncate(s.clean(login), MaxDisplayNameLength)
}

// clean はタグを除去し、StrictPolicyが付与したエスケープを戻す。
// レスポンスはJSONで返すため、HTMLエスケープ済みの値は保存しない。
func (s *ProfileSanitizer) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
