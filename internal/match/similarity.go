package match

import (
	"strings"
	"unicode"
)

// tokenize lowercases a description and splits it into alphanumeric tokens,
// dropping single-character noise.
func tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var current strings.Builder

	flush := func() {
		if current.Len() > 1 {
			tokens[current.String()] = struct{}{}
		}
		current.Reset()
	}

	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

// textSimilarity returns the token overlap between two descriptions in
// [0, 1]: the share of the smaller token set found in the larger one. Bank
// descriptions are usually a noisy superset of the counterparty name, so
// overlap against the smaller set behaves better than plain Jaccard here.
func textSimilarity(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	smaller, larger := tokensA, tokensB
	if len(tokensB) < len(tokensA) {
		smaller, larger = tokensB, tokensA
	}

	shared := 0
	for token := range smaller {
		if _, ok := larger[token]; ok {
			shared++
		}
	}

	return float64(shared) / float64(len(smaller))
}

// normalizeRef strips separators from a structured reference so that
// "RF18 5390 0754 7034" and "RF18539007547034" compare equal.
func normalizeRef(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
