package memory

import "strings"

// Relevance scores the lexical similarity between two strings as the Jaccard
// coefficient over their lower-cased whitespace-split word sets. The score is
// symmetric, bounded to [0, 1], independent of word order and repetition, and
// 0.0 when either side has no words.
func Relevance(a, b string) float64 {
	aw := tokenSet(a)
	bw := tokenSet(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range aw {
		if _, ok := bw[w]; ok {
			intersection++
		}
	}
	union := len(aw) + len(bw) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
