package telegram

import "strings"

// textLimit stays under the Bot API's 4096 character cap.
const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. A chunk ends after its
// last newline when that keeps at least a third of the limit. In HTML mode it
// never ends inside a tag or an entity; in Markdown modes it never separates
// a backslash from the character it escapes.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	mode := splitPlain
	switch lower := strings.ToLower(parseMode); {
	case lower == "html":
		mode = splitHTML
	case strings.Contains(lower, "markdown"):
		mode = splitMarkdown
	}
	rs := []rune(s)
	var chunks []string
	for len(rs) > limit {
		cut := cutPoint(rs[:limit], mode)
		chunks = append(chunks, strings.TrimRight(string(rs[:cut]), "\n"))
		rs = rs[cut:]
		for len(rs) > 0 && rs[0] == '\n' {
			rs = rs[1:]
		}
	}
	if chunks == nil {
		return []string{s}
	}
	return append(chunks, string(rs))
}

type splitMode int

const (
	splitPlain splitMode = iota
	splitHTML
	splitMarkdown
)

// maxEntity bounds how far back an unterminated "&...;" is looked for.
const maxEntity = 10

func cutPoint(window []rune, mode splitMode) int {
	cut := len(window)
	if nl := lastRune(window, '\n'); nl >= len(window)/3 {
		cut = nl + 1
	}
	switch mode {
	case splitHTML:
		if open := lastRune(window[:cut], '<'); open > 1 && open > lastRune(window[:cut], '>') {
			cut = open
		}
		if amp := lastRune(window[:cut], '&'); amp > 0 && cut-amp <= maxEntity && amp > lastRune(window[:cut], ';') {
			cut = amp
		}
	case splitMarkdown:
		n := 0
		for i := cut - 1; i >= 0 && window[i] == '\\'; i-- {
			n++
		}
		if n%2 == 1 && cut > 1 {
			cut--
		}
	}
	return cut
}

func lastRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
