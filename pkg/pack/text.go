package pack

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenRunes = 3

var (
	// tokenSplitter breaks on CJK and ASCII punctuation plus whitespace.
	// Tokens shorter than three runes are dropped, which also sheds most
	// English stopwords.
	tokenSplitter = regexp.MustCompile(`[，。；、,\.\s/\|\-_:：()\[\]{}]+`)

	// listItemPattern matches one markdown bullet or numbered list item.
	listItemPattern = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+(.+)$`)

	emphasisCleaner = strings.NewReplacer("**", "", "__", "", "`", "")
)

// splitTokens returns the tokens of text in order, duplicates included.
func splitTokens(text string) []string {
	var out []string
	for _, tok := range tokenSplitter.Split(text, -1) {
		tok = strings.TrimSpace(tok)
		if utf8.RuneCountInString(tok) >= minTokenRunes {
			out = append(out, tok)
		}
	}
	return out
}

// tokenSet lowercases the token stream into a set for overlap scoring.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range splitTokens(text) {
		set[strings.ToLower(tok)] = struct{}{}
	}
	return set
}

// splitSentences cuts text at sentence-final punctuation. ASCII
// terminators only count before whitespace or end of text, so decimals,
// version numbers, and URL query strings stay intact; CJK terminators
// always end a sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
		start = end
	}
	for i, r := range runes {
		switch r {
		case '。', '！', '？':
			flush(i + 1)
		case '.', '!', '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}

// markdownItems collects the report's list items in order, markdown
// emphasis stripped and each item clipped to limit runes.
func markdownItems(report string, limit int) []string {
	var out []string
	for _, line := range strings.Split(report, "\n") {
		m := listItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(emphasisCleaner.Replace(m[1]))
		if item != "" {
			out = append(out, clipRunes(item, limit))
		}
	}
	return out
}

// hasFigure reports whether text carries a number, percent, or money
// amount, the markers that separate claims from framing prose.
func hasFigure(text string) bool {
	for _, r := range text {
		if unicode.IsDigit(r) || r == '%' || r == '$' {
			return true
		}
	}
	return false
}
