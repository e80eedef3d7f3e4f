package notify

import (
	"strings"

	kit "dealwatch/internal/transport"
)

// markdownV2Reserved is every character Telegram's MarkdownV2 parser treats
// as syntax outside of code entities.
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!\\"

// formatMarkers are dropped from the visible text when unescaped.
const formatMarkers = "*_~`|"

// EscapeMarkdownV2 backslash-escapes every reserved character in s so it is
// rendered literally.
func EscapeMarkdownV2(s string) string {
	if !strings.ContainsAny(s, markdownV2Reserved) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeURL escapes the characters MarkdownV2 reserves inside the (...) part
// of an inline link.
func escapeURL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(s)
}

// Visible returns what the transport displays for a MarkdownV2 string:
// escape backslashes removed, formatting markers removed, and inline links
// reduced to their text. It is the measuring counterpart of EscapeMarkdownV2.
func Visible(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\\' && i+1 < len(rs):
			i++
			b.WriteRune(rs[i])
		case r == '[':
			if text, end, ok := inlineLink(rs, i); ok {
				b.WriteString(Visible(text))
				i = end
				continue
			}
			// A bare '[' is invalid MarkdownV2; count it as shown.
			b.WriteRune(r)
		case strings.ContainsRune(formatMarkers, r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// inlineLink matches "[text](url)" starting at rs[start]. It returns the raw
// text and the index of the closing parenthesis.
func inlineLink(rs []rune, start int) (string, int, bool) {
	closeText := -1
	for i := start + 1; i < len(rs); i++ {
		if rs[i] == '\\' {
			i++
			continue
		}
		if rs[i] == ']' {
			closeText = i
			break
		}
	}
	if closeText < 0 || closeText+1 >= len(rs) || rs[closeText+1] != '(' {
		return "", 0, false
	}
	for i := closeText + 2; i < len(rs); i++ {
		if rs[i] == '\\' {
			i++
			continue
		}
		if rs[i] == ')' {
			return string(rs[start+1 : closeText]), i, true
		}
	}
	return "", 0, false
}

// EffectiveLength is the size the transport counts against its message limit:
// the visible text in UTF-16 code units.
func EffectiveLength(s string) int {
	return kit.TextLen(Visible(s))
}
