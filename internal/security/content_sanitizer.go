// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力した講座の文字列からHTMLを除去する。
// bluemondayのStrictPolicyを使用し、タグと属性を一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// script, styleなどの要素は中身ごと除去される。
	// 残った文字列はエスケープしないプレーンテキストで、同一入力に対して常に同一出力を返す。
	// 出力先に応じたエスケープは表示側で行う。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは残った文字列をエスケープするため元に戻す。
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
