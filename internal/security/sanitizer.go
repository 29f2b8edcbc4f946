// Package security はフィード取得まわりのセキュリティ機能を提供する。
//
// SummarySanitizer はフィードから取り込んだエピソード概要のHTMLをサニタイズし、
// XSS攻撃などのリスクから利用側を保護する。bluemondayの許可リストベースの
// ポリシーで、安全なタグと属性のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// SummarySanitizer はエピソード概要のサニタイズ機能のインターフェースを定義する。
// フィード解析結果の保存前に使用される。
type SummarySanitizer interface {
	// Sanitize はHTML文字列をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// summarySanitizer はSummarySanitizerの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type summarySanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はSummarySanitizerの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
func NewSummarySanitizer() *summarySanitizer {
	p := bluemonday.NewPolicy()

	// 概要文で使われる基本的な整形タグのみを許可する。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)

	// aタグ:
	// - href属性を許可（http/httpsの絶対URLのみ）
	// - target="_blank"とrel="noreferrer noopener"を強制付与
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &summarySanitizer{
		policy: p,
	}
}

// Sanitize はHTML文字列をサニタイズして安全なHTMLを返す。
func (s *summarySanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

var _ SummarySanitizer = (*summarySanitizer)(nil)
