// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザーが入力したリードのメモや案件の説明をサニタイズし、
// ダッシュボードでの表示時にXSSが成立しないようにする。
// bluemondayの許可リストベースのポリシーで、簡単な書式タグのみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力のサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// Sanitize はメモ等の複数行テキストをサニタイズする。
	// 許可タグ（p, br, ul, ol, li, strong, em, a）のみを通過させ、
	// aタグのhrefは https, mailto, tel スキームのみ許可する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string

	// Plain は名前や会社名などの単一行フィールドから全てのタグを除去し、前後の空白を取り除く。
	Plain(raw string) string
}

type contentSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
func NewContentSanitizer() ContentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, style, on*属性は許可リストに含めないことで除去される
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("https", "mailto", "tel")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		rich:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメモ等の複数行テキストをサニタイズする。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.rich.Sanitize(raw)
}

// Plain は単一行フィールドから全てのタグを除去する。
// StrictPolicyはエンティティをエスケープした文字列を返すため、生のテキストとして保存できるよう戻す。
func (s *contentSanitizer) Plain(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}
