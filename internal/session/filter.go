package session

import (
	"strings"
	"unicode"
)

var fillerRunes = map[rune]struct{}{
	'嗯': {}, '啊': {}, '呀': {}, '呢': {}, '吧': {}, '啦': {}, '咯': {},
	'哦': {}, '呵': {}, '哈': {}, '嗨': {}, '喂': {}, '欸': {}, '哎': {},
}

func isFiller(r rune) bool {
	_, ok := fillerRunes[r]
	return ok
}

// FilterTranscript collapses whitespace, drops filler interjections that stand
// alone or lead a clause ("嗯，"), and removes adjacent duplicate tokens.
func FilterTranscript(text string) string {
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = stripLeadingFillers(tok)
		if tok == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == tok {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// stripLeadingFillers removes filler runs that are followed by punctuation or
// end the token.
func stripLeadingFillers(tok string) string {
	for {
		rest := strings.TrimLeftFunc(tok, isFiller)
		if rest == tok {
			return tok
		}
		if rest == "" {
			return ""
		}
		trimmed := strings.TrimLeftFunc(rest, unicode.IsPunct)
		if trimmed == rest {
			return tok
		}
		tok = trimmed
	}
}
