// Package textsim approximates text similarity with an order-insensitive
// token overlap score. It is intentionally cheap: duplicate detection needs
// "same complaint filed twice", not semantic matching.
package textsim

import (
	"strings"
	"unicode"
)

// Similarity returns a score in [0, 1] for two strings using the Sørensen–Dice
// coefficient over lowercase token sets. Token order is ignored. Two empty
// strings are identical (1); an empty string never matches a non-empty one.
func Similarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 1
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	common := 0
	for token := range tokensA {
		if tokensB[token] {
			common++
		}
	}

	return 2 * float64(common) / float64(len(tokensA)+len(tokensB))
}

func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	tokens := make(map[string]bool, len(fields))
	for _, field := range fields {
		tokens[field] = true
	}
	return tokens
}
