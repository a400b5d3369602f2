package debate

import (
	"strings"
	"unicode"
)

// ContentDelta measures how far a revised text moved from the original, as
// a percentage in [0, 100]. It compares word frequency bags with a Dice
// coefficient, so pure reordering scores near zero while replaced findings
// score high. ASCII words are lowercased tokens; CJK runes count one each.
func ContentDelta(original, revised string) float64 {
	a, b := wordBag(original), wordBag(revised)

	sizeA, sizeB := 0, 0
	for _, n := range a {
		sizeA += n
	}
	for _, n := range b {
		sizeB += n
	}
	if sizeA == 0 && sizeB == 0 {
		return 0
	}
	if sizeA == 0 || sizeB == 0 {
		return 100
	}

	overlap := 0
	for token, n := range a {
		overlap += min(n, b[token])
	}
	similarity := 2 * float64(overlap) / float64(sizeA+sizeB)
	return (1 - similarity) * 100
}

func wordBag(text string) map[string]int {
	bag := make(map[string]int)
	var word []rune
	flush := func() {
		if len(word) > 0 {
			bag[strings.ToLower(string(word))]++
			word = word[:0]
		}
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			bag[string(r)]++
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()
	return bag
}
