// Package sanitize turns raw notification text into something a given channel
// can safely render: plain speakable text for voice channels, or text escaped
// for the markup dialect of a visual channel.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reTag = regexp.MustCompile(`<[^>]+>`)
	reURL = regexp.MustCompile(`http\S+`)
)

// emphasis markers that TTS engines would otherwise read aloud.
const voiceNoise = "*_`~<>"

// CleanForVoice strips markup tags, URLs, emphasis markers and pictographs
// (Unicode category So) and normalizes whitespace.
//
// The result never contains '<', '>' or an So rune and CleanForVoice is
// idempotent. Pictographs are dropped before URL removal so that a symbol
// wedged inside "http" cannot resurface a URL on a second pass.
func CleanForVoice(text string) string {
	if text == "" {
		return ""
	}
	text = reTag.ReplaceAllString(text, "")
	text = strings.Map(func(r rune) rune {
		if strings.ContainsRune(voiceNoise, r) || unicode.Is(unicode.So, r) {
			return -1
		}
		return r
	}, text)
	text = reURL.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// markdownReserved is the MarkdownV2 reserved set.
const markdownReserved = "_*[]()~`>#+-=|{}.!"

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeForMarkup escapes text for the given parse mode. Dialect matching is a
// case-insensitive substring test: anything containing "markdown" gets
// backslash escaping, anything containing "html" gets entity escaping of
// < > & (quotes are left alone). Other dialects pass through unchanged.
func EscapeForMarkup(text, dialect string) string {
	if text == "" {
		return ""
	}
	mode := strings.ToLower(dialect)
	switch {
	case strings.Contains(mode, "markdown"):
		return escapeMarkdown(text)
	case strings.Contains(mode, "html"):
		return htmlEscaper.Replace(text)
	default:
		return text
	}
}

func escapeMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if strings.ContainsRune(markdownReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UnescapeMarkdown removes the backslashes EscapeForMarkup inserted in front
// of reserved characters.
func UnescapeMarkdown(text string) string {
	rs := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(rs); i++ {
		if rs[i] == '\\' && i+1 < len(rs) && strings.ContainsRune(markdownReserved, rs[i+1]) {
			i++
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}
