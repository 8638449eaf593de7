package markup

import "strings"

// Characters Telegram reserves in MarkdownV2.
var replacer = strings.NewReplacer(
	`\`, `\\`,
	"-", "\\-",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

// EscapeForMarkdown escapes src for a MarkdownV2 message.
func EscapeForMarkdown(src string) string {
	return replacer.Replace(src)
}

// Hashtag turns a trending term into an escaped tag. Spaces are dropped and hyphens
// become underscores, so "New York Fashion Week" stays one tag.
func Hashtag(term string) string {
	tag := strings.NewReplacer(" ", "", "-", "_").Replace(strings.TrimSpace(term))
	if tag == "" {
		return ""
	}
	return EscapeForMarkdown("#" + tag)
}
