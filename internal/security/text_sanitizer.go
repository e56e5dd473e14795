// Package security はユーザー入力を保存する前の無害化と検証を提供する。
//
// プロフィールの文字列はクライアントでそのまま表示されるため、
// HTMLを取り除いたプレーンテキストとして保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプロフィール文字列の無害化のインターフェースを定義する。
type TextSanitizerService interface {
	// PlainText はHTMLタグを全て除去し、前後の空白を除いたプレーンテキストを返す。
	// 文字参照はデコードして返すため、"Tom & Jerry" はそのまま保持される。
	PlainText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーは並行利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はタグを一切許可しないポリシーでTextSanitizerServiceを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは出力をHTMLエスケープするので、保存用に戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
