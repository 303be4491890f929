package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はユーザーが入力したポッドキャスト説明文のHTMLを無害化する。
type DescriptionSanitizer interface {
	// Sanitize は許可された簡易書式以外を除去し、前後の空白を取り除いた文字列を返す。
	Sanitize(raw string) string
}

type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer は説明文用のbluemondayポリシーを構築する。
// 許可タグ: p, br, strong, em, b, i, ul, ol, li, a（http/httpsのhrefのみ）
func NewDescriptionSanitizer() DescriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("p", "br", "strong", "em", "b", "i", "ul", "ol", "li")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &descriptionSanitizer{policy: p}
}

func (s *descriptionSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
