package similarity

import (
	"slices"
	"strings"
	"unicode"
)

// Tokenize splits text on whitespace and punctuation, case-folds the words
// and returns the sorted set of distinct tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	slices.Sort(fields)
	return slices.Compact(fields)
}

// Jaccard returns |a ∩ b| / |a ∪ b| for two sorted token sets.
// Two empty sets score 0: there is no evidence that they are alike.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
