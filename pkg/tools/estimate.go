package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode"
)

// EstimateTokens approximates the token count of mixed English and CJK
// text without a tokenizer: ASCII word runs weigh 1.3 tokens, CJK ideographs
// 1.5, punctuation 0.3. Empty text estimates zero; non-empty text whose raw
// estimate collapses to zero floors at one token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	var asciiWords, cjkChars, punctChars int
	inWord := false
	for _, r := range text {
		isWordChar := r == '_' ||
			(r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z')
		if isWordChar {
			if !inWord {
				asciiWords++
				inWord = true
			}
		} else {
			inWord = false
		}

		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			cjkChars++
		case isWordChar || unicode.IsSpace(r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			// Non-ASCII letters and digits are neither words nor
			// punctuation for this heuristic.
		default:
			punctChars++
		}
	}

	estimate := float64(asciiWords)*1.3 + float64(cjkChars)*1.5 + float64(punctChars)*0.3
	if estimate <= 0 {
		return 1
	}
	return int(math.Round(estimate))
}

// PayloadText renders a payload deterministically for token estimation.
// Map keys marshal in sorted order, so equal payloads estimate equally.
func PayloadText(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(raw)
}

// EstimateCostUSD prices estimated tokens in USD, rounded to 6 decimals.
func EstimateCostUSD(inputTokens, outputTokens int, inputPricePer1K, outputPricePer1K float64) float64 {
	cost := float64(inputTokens)/1000*inputPricePer1K +
		float64(outputTokens)/1000*outputPricePer1K
	return round6(cost)
}

func round2(x float64) float64 { return math.Round(x*1e2) / 1e2 }
func round4(x float64) float64 { return math.Round(x*1e4) / 1e4 }
func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
